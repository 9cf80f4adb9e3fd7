package backend

import (
	"github.com/pkg/errors"

	"modelrunner/internal/registry"
	"modelrunner/pkg/types"
)

// ListModels reports the model files found under the configured models
// directory. Without a models directory the list is empty.
func (s *Service) ListModels() ([]types.Model, error) {
	if s.cfg.ModelsDir == "" {
		return nil, nil
	}
	models, err := registry.LoadDir(s.cfg.ModelsDir)
	if err != nil {
		return nil, errors.Wrap(err, "list models")
	}
	return models, nil
}
