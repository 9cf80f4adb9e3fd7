package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config carries process-level settings shared by all engine factories.
type Config struct {
	Logger zerolog.Logger
	// llama-server engine
	LlamaServerBin  string
	LlamaServerHost string
	// How long a spawned llama-server may take to become healthy.
	LlamaReadyTimeout time.Duration
}

// Factory builds a fresh, unloaded engine.
type Factory func(cfg Config) Engine

// Registry maps backend names to factories.
type Registry struct {
	mu        sync.RWMutex
	cfg       Config
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in engines.
func DefaultRegistry(cfg Config) *Registry {
	r := NewRegistry(cfg)
	r.Register(EchoBackend, func(c Config) Engine { return NewEcho(c) })
	r.Register(LlamaBackend, func(c Config) Engine { return NewLlama(c) })
	r.Register(LlamaServerBackend, func(c Config) Engine { return NewLlamaServer(c) })
	return r
}

// Register installs or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[strings.ToLower(name)] = f
	r.mu.Unlock()
}

// New instantiates the named engine.
func (r *Registry) New(name string) (Engine, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownBackend, name, strings.Join(r.Names(), ", "))
	}
	return f(r.cfg), nil
}

// Names lists registered backends sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseOptions splits "key:value" engine options. Entries without a colon
// map to "true"; later keys win.
func ParseOptions(opts []string) map[string]string {
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		k, v, ok := strings.Cut(o, ":")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if !ok {
			v = "true"
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
