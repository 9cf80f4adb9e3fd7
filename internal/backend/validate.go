package backend

import (
	"fmt"
	"strings"

	"modelrunner/pkg/types"
)

const maxImageSide = 4096

func (s *Service) validatePredict(op string, o *types.PredictOptions) error {
	if o == nil {
		return errInvalid(op, "request is required")
	}
	if strings.TrimSpace(o.Prompt) == "" {
		return errInvalid(op, "prompt is required")
	}
	if len(o.Prompt) > s.cfg.MaxPromptBytes {
		return errInvalid(op, fmt.Sprintf("prompt exceeds %d bytes", s.cfg.MaxPromptBytes))
	}
	if o.Tokens < 0 {
		return errInvalid(op, "tokens must be >= 0")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return errInvalid(op, "temperature must be within [0,2]")
	}
	if o.TopP < 0 || o.TopP > 1 {
		return errInvalid(op, "top_p must be within [0,1]")
	}
	if o.TopK < 0 {
		return errInvalid(op, "top_k must be >= 0")
	}
	return nil
}

func (s *Service) validateEmbedding(op string, o *types.PredictOptions) error {
	if o == nil {
		return errInvalid(op, "request is required")
	}
	text := o.Embeddings
	if text == "" {
		text = o.Prompt
	}
	if strings.TrimSpace(text) == "" {
		return errInvalid(op, "embeddings or prompt text is required")
	}
	if len(text) > s.cfg.MaxPromptBytes {
		return errInvalid(op, fmt.Sprintf("text exceeds %d bytes", s.cfg.MaxPromptBytes))
	}
	return nil
}

func validateImage(op string, r *types.GenerateImageRequest) error {
	if r == nil {
		return errInvalid(op, "request is required")
	}
	if strings.TrimSpace(r.PositivePrompt) == "" {
		return errInvalid(op, "positive_prompt is required")
	}
	if strings.TrimSpace(r.Dst) == "" {
		return errInvalid(op, "dst is required")
	}
	if r.Width < 0 || r.Width > maxImageSide || r.Height < 0 || r.Height > maxImageSide {
		return errInvalid(op, fmt.Sprintf("width and height must be within [0,%d]", maxImageSide))
	}
	if r.Step < 0 {
		return errInvalid(op, "step must be >= 0")
	}
	return nil
}

func validateTranscript(op string, r *types.TranscriptRequest) error {
	if r == nil {
		return errInvalid(op, "request is required")
	}
	if strings.TrimSpace(r.Dst) == "" {
		return errInvalid(op, "dst is required")
	}
	return nil
}

func validateTTS(op string, r *types.TtsRequest) error {
	if r == nil {
		return errInvalid(op, "request is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errInvalid(op, "text is required")
	}
	if strings.TrimSpace(r.Dst) == "" {
		return errInvalid(op, "dst is required")
	}
	return nil
}
