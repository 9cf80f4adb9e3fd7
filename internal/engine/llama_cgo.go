//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"modelrunner/pkg/types"
)

// LlamaBackend is the name of the in-process go-llama.cpp engine.
const LlamaBackend = "llama"

// LlamaBuilt reports whether this binary carries the in-process engine.
const LlamaBuilt = true

// Llama owns one go-llama.cpp model. The binding keeps a single token
// callback per model, so the engine is not reentrant.
type Llama struct {
	log        zerolog.Logger
	model      *llama.LLama
	threads    int
	embeddings bool
}

func NewLlama(cfg Config) *Llama {
	return &Llama{log: cfg.Logger.With().Str("engine", LlamaBackend).Logger()}
}

func (l *Llama) Load(ctx context.Context, p LoadParams) error {
	if strings.TrimSpace(p.ModelFile) == "" {
		return errors.New("model file is required")
	}
	o := p.Options
	mo := []llama.ModelOption{
		llama.SetContext(zn(o.ContextSize, 512)),
		llama.SetMMap(o.MMap),
	}
	if o.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(o.GPULayers))
	}
	if o.Seed != 0 {
		mo = append(mo, llama.SetModelSeed(o.Seed))
	}
	if o.F16 {
		mo = append(mo, llama.EnableF16Memory)
	}
	if o.Embeddings {
		mo = append(mo, llama.EnableEmbeddings)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	m, err := llama.New(p.ModelFile, mo...)
	if err != nil {
		return err
	}
	l.model = m
	l.threads = o.Threads
	l.embeddings = o.Embeddings
	l.log.Info().Str("file", p.ModelFile).Dur("dur", time.Since(start)).Msg("llama model loaded")
	return nil
}

func (l *Llama) Capabilities() Capability {
	c := CapPredict | CapPredictStream | CapTokenize
	if l.embeddings {
		c |= CapEmbedding
	}
	return c
}

func (l *Llama) Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error) {
	if l.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	start := time.Now()
	text, err := l.model.Predict(opts.Prompt, predictOptions(opts, l.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &types.Reply{Message: []byte(text), TimingTokenGeneration: time.Since(start).Seconds()}, nil
}

func (l *Llama) PredictStream(ctx context.Context, opts *types.PredictOptions, emit func(string) error) error {
	if l.model == nil {
		return errors.New("llama model not initialized")
	}
	var emitErr error
	// Bridge token streaming to emit and respect cancellation
	l.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := emit(tok); err != nil {
			emitErr = err
			return false
		}
		return true
	})
	defer l.model.SetTokenCallback(nil)
	_, err := l.model.Predict(opts.Prompt, predictOptions(opts, l.threads)...)
	if emitErr != nil {
		return emitErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (l *Llama) Embed(ctx context.Context, opts *types.PredictOptions) ([]float32, error) {
	text := opts.Embeddings
	if text == "" {
		text = opts.Prompt
	}
	return l.model.Embeddings(text, predictOptions(opts, l.threads)...)
}

func (l *Llama) Tokenize(ctx context.Context, opts *types.PredictOptions) ([]int32, error) {
	_, toks, err := l.model.TokenizeString(opts.Prompt, predictOptions(opts, l.threads)...)
	return toks, err
}

func (l *Llama) Reentrant() bool { return false }

func (l *Llama) Close() error {
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions converts request parameters into go-llama.cpp options.
func predictOptions(o *types.PredictOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(o.Tokens, llama.DefaultOptions.Tokens)),
		llama.SetThreads(zn(o.Threads, zn(threads, 1))),
		llama.SetTopP(zf(o.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(o.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(o.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(o.Penalty, llama.DefaultOptions.Penalty)),
	}
	if o.Seed != 0 {
		po = append(po, llama.SetSeed(o.Seed))
	}
	if len(o.StopPrompts) > 0 {
		po = append(po, llama.SetStopWords(o.StopPrompts...))
	}
	if o.IgnoreEOS {
		po = append(po, llama.IgnoreEOS)
	}
	return po
}
