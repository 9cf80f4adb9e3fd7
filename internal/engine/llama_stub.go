//go:build !llama

package engine

// This file provides a no-CGO stub for the in-process llama engine. It is
// compiled when the 'llama' build tag is NOT set, keeping default builds and
// CI CGO-free. The real engine lives in llama_cgo.go.

import (
	"context"

	"github.com/rs/zerolog"
)

// LlamaBackend is the name of the in-process go-llama.cpp engine.
const LlamaBackend = "llama"

// LlamaBuilt reports whether this binary carries the in-process engine.
const LlamaBuilt = false

// Llama refuses to load without the 'llama' build tag.
type Llama struct {
	log zerolog.Logger
}

func NewLlama(cfg Config) *Llama {
	return &Llama{log: cfg.Logger.With().Str("engine", LlamaBackend).Logger()}
}

func (l *Llama) Load(ctx context.Context, p LoadParams) error {
	l.log.Warn().Str("model", p.Options.Model).Msg("llama engine requested but not compiled in")
	return ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (l *Llama) Capabilities() Capability { return CapNone }

func (l *Llama) Reentrant() bool { return false }

func (l *Llama) Close() error { return nil }
