package backend

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/engine"
	"modelrunner/pkg/types"
)

// Service hosts at most one model handle and serves every backend operation
// against it. All methods are safe for concurrent use.
type Service struct {
	cfg     Config
	log     zerolog.Logger
	pub     EventPublisher
	started time.Time

	// handleMu is held exclusively for a whole load and shared for every
	// engine call, so load and inference never overlap.
	handleMu sync.RWMutex
	// lc is read without handleMu; health and status never wait on a load.
	lc *lifecycle

	mu       sync.RWMutex
	eng      engine.Engine
	caps     engine.Capability
	opts     types.ModelOptions
	backend  string
	file     string
	loadedAt time.Time
	lastErr  string
	adm      *admission

	loadsTotal atomic.Uint64
	closed     atomic.Bool
}

// New constructs a Service in the unloaded state.
func New(cfg Config) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "backend").Logger(),
		pub:     cfg.Publisher,
		started: time.Now(),
	}
	s.lc = newLifecycle(s.onStateChange)
	setLifecycleGauge(types.StateUnloaded)
	return s
}

func (s *Service) onStateChange(from, to types.ModelState) {
	setLifecycleGauge(to)
	s.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("state changed")
	s.publish(Event{Name: EventStateChanged, Fields: map[string]any{"from": string(from), "to": string(to)}})
}

func (s *Service) publish(e Event) {
	if e.Model == "" {
		s.mu.RLock()
		e.Model = modelName(s.opts)
		s.mu.RUnlock()
	}
	s.log.Debug().Str("event", e.Name).Str("model", e.Model).Msg("publish")
	s.pub.Publish(e)
}

// State returns the current lifecycle state.
func (s *Service) State() types.ModelState { return s.lc.State() }

// Health answers without consulting the model.
func (s *Service) Health() *types.Reply {
	return &types.Reply{Message: []byte("OK")}
}

// Close releases the engine. A ready model moves to failed with the error
// "service closed"; inference afterwards fails with NotLoaded.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	s.mu.Lock()
	eng := s.eng
	s.eng = nil
	s.caps = 0
	if eng != nil {
		s.lastErr = errServiceClosed
	}
	s.mu.Unlock()
	if eng == nil {
		return nil
	}
	s.lc.fail()
	s.log.Info().Msg("closing engine")
	return eng.Close()
}

// markFailed moves ready to failed after an unrecoverable engine error. The
// handle is closed once in-flight calls drain.
func (s *Service) markFailed(op string, cause error) {
	if !s.lc.fail() {
		return
	}
	s.mu.Lock()
	s.lastErr = cause.Error()
	eng := s.eng
	s.mu.Unlock()
	s.log.Error().Err(cause).Str("op", op).Msg("engine failed; model marked failed")
	s.publish(Event{Name: EventEngineFatal, Fields: map[string]any{"op": op, "error": cause.Error()}})
	go s.closeFailed(eng)
}

func (s *Service) closeFailed(eng engine.Engine) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	s.mu.Lock()
	if eng == nil || s.eng != eng {
		s.mu.Unlock()
		return
	}
	s.eng = nil
	s.caps = 0
	s.mu.Unlock()
	if err := eng.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close failed engine")
	}
}

const errServiceClosed = "service closed"

func modelName(o types.ModelOptions) string {
	if o.Model != "" {
		return o.Model
	}
	return o.ModelFile
}
