package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modelrunner/internal/engine"
	"modelrunner/pkg/types"
)

// Operation names, as used in errors, logs and metrics labels.
const (
	OpPredict       = "predict"
	OpPredictStream = "predict_stream"
	OpEmbedding     = "embedding"
	OpImage         = "generate_image"
	OpTranscription = "audio_transcription"
	OpTTS           = "tts"
	OpTokenize      = "tokenize_string"
)

// handle is the loaded model as seen by one request.
type handle struct {
	eng  engine.Engine
	caps engine.Capability
	adm  *admission
}

// enter takes the shared handle lock for one request. It never waits: a
// model that is not ready, or a load holding the handle, yields NotLoaded.
func (s *Service) enter(op string) (handle, func(), error) {
	if s.lc.State() != types.StateReady {
		return handle{}, nil, errNotLoaded(op)
	}
	if !s.handleMu.TryRLock() {
		return handle{}, nil, errNotLoaded(op)
	}
	s.mu.RLock()
	h := handle{eng: s.eng, caps: s.caps, adm: s.adm}
	s.mu.RUnlock()
	if h.eng == nil || s.lc.State() != types.StateReady {
		s.handleMu.RUnlock()
		return handle{}, nil, errNotLoaded(op)
	}
	return h, s.handleMu.RUnlock, nil
}

// dispatch runs the shared request pipeline: ready check, validation,
// capability check, admission, then call under panic recovery. The
// returned error is always a *Error.
func (s *Service) dispatch(ctx context.Context, op string, capability engine.Capability, validate func() error, call func(context.Context, engine.Engine) error) (err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	h, leave, err := s.enter(op)
	if err != nil {
		return err
	}
	defer leave()
	if err := validate(); err != nil {
		return err
	}
	if !h.caps.Has(capability) {
		return errUnsupported(op, capability.String())
	}
	release, err := h.adm.acquire(ctx, op)
	if err != nil {
		return err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return newError(KindCancelled, op, "", err)
	}
	return s.classify(ctx, op, guard(func() error { return call(ctx, h.eng) }))
}

// classify maps an engine error onto the error taxonomy. Fatal engine
// errors also fail the model.
func (s *Service) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe panicError
	switch {
	case errors.As(err, &pe):
		s.log.Error().Str("op", op).Interface("panic", pe.v).Msg("engine panic recovered")
		return newError(KindInternal, op, "engine panic", err)
	case ctx.Err() != nil:
		return newError(KindCancelled, op, "", ctx.Err())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindCancelled, op, "", err)
	case engine.IsFatal(err):
		s.markFailed(op, err)
		return newError(KindRuntime, op, "engine failed", err)
	default:
		return newError(KindRuntime, op, "", err)
	}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{v: r}
		}
	}()
	return fn()
}

// Predict runs one unary text generation.
func (s *Service) Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error) {
	var out *types.Reply
	err := s.dispatch(ctx, OpPredict, engine.CapPredict,
		func() error { return s.validatePredict(OpPredict, opts) },
		func(ctx context.Context, e engine.Engine) error {
			r, err := e.(engine.Predictor).Predict(ctx, opts)
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("engine returned no reply")
			}
			out = r
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embedding computes the embedding of opts.Embeddings, or opts.Prompt when
// that is empty.
func (s *Service) Embedding(ctx context.Context, opts *types.PredictOptions) (*types.EmbeddingResult, error) {
	var out []float32
	err := s.dispatch(ctx, OpEmbedding, engine.CapEmbedding,
		func() error { return s.validateEmbedding(OpEmbedding, opts) },
		func(ctx context.Context, e engine.Engine) (err error) {
			out, err = e.(engine.Embedder).Embed(ctx, opts)
			return err
		})
	if err != nil {
		return nil, err
	}
	return &types.EmbeddingResult{Embeddings: out}, nil
}

// GenerateImage renders req into req.Dst.
func (s *Service) GenerateImage(ctx context.Context, req *types.GenerateImageRequest) (*types.Result, error) {
	err := s.dispatch(ctx, OpImage, engine.CapImage,
		func() error { return validateImage(OpImage, req) },
		func(ctx context.Context, e engine.Engine) error {
			return e.(engine.ImageGenerator).GenerateImage(ctx, req)
		})
	if err != nil {
		return nil, err
	}
	return &types.Result{Success: true, Message: "image written to " + req.Dst}, nil
}

// AudioTranscription transcribes the audio file at req.Dst.
func (s *Service) AudioTranscription(ctx context.Context, req *types.TranscriptRequest) (*types.TranscriptResult, error) {
	var out *types.TranscriptResult
	err := s.dispatch(ctx, OpTranscription, engine.CapTranscription,
		func() error { return validateTranscript(OpTranscription, req) },
		func(ctx context.Context, e engine.Engine) (err error) {
			out, err = e.(engine.Transcriber).Transcribe(ctx, req)
			if err == nil && out == nil {
				out = &types.TranscriptResult{}
			}
			return err
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TTS synthesizes req.Text into req.Dst.
func (s *Service) TTS(ctx context.Context, req *types.TtsRequest) (*types.Result, error) {
	err := s.dispatch(ctx, OpTTS, engine.CapTTS,
		func() error { return validateTTS(OpTTS, req) },
		func(ctx context.Context, e engine.Engine) error {
			return e.(engine.Synthesizer).TTS(ctx, req)
		})
	if err != nil {
		return nil, err
	}
	return &types.Result{Success: true, Message: "audio written to " + req.Dst}, nil
}

// TokenizeString tokenizes opts.Prompt with the model's tokenizer.
func (s *Service) TokenizeString(ctx context.Context, opts *types.PredictOptions) (*types.TokenizationResponse, error) {
	var toks []int32
	err := s.dispatch(ctx, OpTokenize, engine.CapTokenize,
		func() error { return s.validatePredict(OpTokenize, opts) },
		func(ctx context.Context, e engine.Engine) (err error) {
			toks, err = e.(engine.Tokenizer).Tokenize(ctx, opts)
			return err
		})
	if err != nil {
		return nil, err
	}
	return &types.TokenizationResponse{Length: len(toks), Tokens: toks}, nil
}
