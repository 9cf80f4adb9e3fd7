// Package registry discovers model files on disk and resolves the file a
// load request names.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"modelrunner/internal/common/fsutil"
	"modelrunner/pkg/types"
)

// ModelExtensions are the file suffixes LoadDir reports, matched
// case-insensitively.
var ModelExtensions = []string{".gguf", ".bin", ".onnx", ".safetensors"}

// ErrOutsideDir is returned by Resolve for relative names escaping the
// models directory.
var ErrOutsideDir = errors.New("model file escapes models directory")

// LoadDir scans a directory for model files and builds a listing from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
func LoadDir(dir string) ([]types.Model, error) {
	abs, err := absDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !hasModelExt(e.Name()) {
			continue
		}
		m := types.Model{ID: e.Name(), Path: filepath.Join(abs, e.Name())}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve turns the model file named by a load request into an absolute
// path. Absolute names are taken as-is; relative names are joined to dir and
// must stay inside it. The file must exist.
func Resolve(dir, file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", errors.New("model file is empty")
	}
	file, err := fsutil.ExpandHome(file)
	if err != nil {
		return "", err
	}
	var p string
	if filepath.IsAbs(file) {
		p = filepath.Clean(file)
	} else {
		base, err := absDir(dir)
		if err != nil {
			return "", err
		}
		p = filepath.Join(base, file)
		if !fsutil.WithinDir(base, p) {
			return "", fmt.Errorf("%w: %s", ErrOutsideDir, file)
		}
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("model file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model file is a directory: %s", p)
	}
	return p, nil
}

func absDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return abs, nil
}

func hasModelExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range ModelExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
