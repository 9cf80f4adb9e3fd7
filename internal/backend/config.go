package backend

import (
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/engine"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultMaxWait        = 30 * time.Second
	defaultMaxParallel    = 4
	defaultStreamBuffer   = 16
	defaultMaxPromptBytes = 1 << 20
	defaultBackend        = engine.EchoBackend
)

// Config encapsulates all tunables for Service construction.
type Config struct {
	// Engines resolves ModelOptions.Backend. Defaults to engine.DefaultRegistry.
	Engines *engine.Registry
	// Backend used when ModelOptions.Backend is empty.
	DefaultBackend string
	// Base directory for relative ModelOptions.ModelFile values.
	ModelsDir string

	// Admission: queue slots (including the running requests) and how long
	// a request may wait for a slot before failing with Busy.
	MaxQueueDepth int
	MaxWait       time.Duration
	// Concurrent engine calls for models loaded with Parallel=true.
	MaxParallel int

	// Buffered chunks per stream before the engine is blocked.
	StreamBuffer   int
	MaxPromptBytes int
	// Upper bound for one LoadModel call; 0 disables.
	LoadTimeout time.Duration

	Logger    zerolog.Logger
	Publisher EventPublisher
	Sampler   MemorySampler
	CPU       CPUSampler
}

func (c Config) withDefaults() Config {
	if c.Engines == nil {
		c.Engines = engine.DefaultRegistry(engine.Config{Logger: c.Logger})
	}
	if c.DefaultBackend == "" {
		c.DefaultBackend = defaultBackend
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaultMaxParallel
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = defaultStreamBuffer
	}
	if c.MaxPromptBytes <= 0 {
		c.MaxPromptBytes = defaultMaxPromptBytes
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Sampler == nil {
		c.Sampler = ProcessSampler
	}
	if c.CPU == nil {
		c.CPU = ProcessCPUSampler
	}
	return c
}
