package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/internal/engine"
	"modelrunner/internal/registry"
	"modelrunner/pkg/types"
)

// LoadModel initializes the model handle. It is accepted only from the
// unloaded and failed states; any other state yields AlreadyLoaded. A
// failed load leaves the service in the failed state with the cause
// reported by Status, and may be retried.
func (s *Service) LoadModel(ctx context.Context, opts *types.ModelOptions) (res *types.Result, err error) {
	const op = "load_model"
	start := time.Now()
	defer func() { observe(op, start, err) }()

	if opts == nil || (strings.TrimSpace(opts.Model) == "" && strings.TrimSpace(opts.ModelFile) == "") {
		return nil, errInvalid(op, "model or model_file is required")
	}
	if s.closed.Load() {
		return nil, newError(KindInternal, op, "service is closed", nil)
	}
	backendName := strings.TrimSpace(opts.Backend)
	if backendName == "" {
		backendName = s.cfg.DefaultBackend
	}
	eng, err := s.cfg.Engines.New(backendName)
	if err != nil {
		return nil, newError(KindInvalidRequest, op, "", err)
	}
	if ferr := s.lc.fire(evLoad); ferr != nil {
		_ = eng.Close()
		return nil, newError(KindAlreadyLoaded, op, "model is "+string(s.lc.State()), nil)
	}

	name := modelName(*opts)
	caps, err := s.load(ctx, opts, eng, backendName, start)
	if err != nil {
		return nil, err
	}
	// handleMu is released before ready so no request can observe ready
	// while the load still holds the handle.
	if ferr := s.lc.fire(evLoaded); ferr != nil {
		s.lc.fail()
		return nil, newError(KindInternal, op, "lifecycle", ferr)
	}
	s.log.Info().Str("model", name).Str("capabilities", caps.String()).Dur("dur", time.Since(start)).Msg("model ready")
	s.publish(Event{Name: EventModelReady, Model: name, Fields: map[string]any{"capabilities": caps.Names()}})
	return &types.Result{Success: true, Message: fmt.Sprintf("model %s loaded with backend %s", name, backendName)}, nil
}

// load runs the engine initialization under the exclusive handle lock.
func (s *Service) load(ctx context.Context, opts *types.ModelOptions, eng engine.Engine, backendName string, start time.Time) (engine.Capability, error) {
	const op = "load_model"
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	name := modelName(*opts)
	log := s.log.With().Str("model", name).Str("backend", backendName).Logger()
	s.loadsTotal.Add(1)
	s.mu.Lock()
	prev := s.eng
	s.eng, s.caps = nil, 0
	s.opts = *opts
	s.backend = backendName
	s.file = ""
	s.lastErr = ""
	s.mu.Unlock()
	if prev != nil {
		if cerr := prev.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close previous engine")
		}
	}
	s.publish(Event{Name: EventLoadStarted, Model: name, Fields: map[string]any{"backend": backendName}})
	log.Info().Msg("loading model")

	fail := func(kind Kind, msg string, cause error) error {
		_ = eng.Close()
		e := newError(kind, op, msg, cause)
		s.mu.Lock()
		if s.eng == eng {
			s.eng, s.caps = nil, 0
		}
		s.lastErr = e.Error()
		s.mu.Unlock()
		s.lc.fail()
		log.Error().Err(e).Dur("dur", time.Since(start)).Msg("load failed")
		s.publish(Event{Name: EventLoadFailed, Model: name, Fields: map[string]any{"error": e.Error()}})
		return e
	}

	var file string
	if strings.TrimSpace(opts.ModelFile) != "" {
		dir := s.cfg.ModelsDir
		if opts.ModelPath != "" {
			dir = opts.ModelPath
		}
		p, rerr := registry.Resolve(dir, opts.ModelFile)
		if rerr != nil {
			return 0, fail(KindRuntime, "resolve model file", rerr)
		}
		file = p
	}

	lctx := ctx
	if s.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, s.cfg.LoadTimeout)
		defer cancel()
	}
	if lerr := safeLoad(lctx, eng, engine.LoadParams{Options: *opts, ModelFile: file}); lerr != nil {
		kind := KindRuntime
		if ctx.Err() != nil {
			kind = KindCancelled
		} else if _, ok := lerr.(panicError); ok {
			kind = KindInternal
		}
		return 0, fail(kind, "engine load", lerr)
	}
	caps := engine.Negotiate(eng)
	if caps == engine.CapNone {
		return 0, fail(KindRuntime, "engine exposes no capabilities", nil)
	}

	s.mu.Lock()
	s.eng = eng
	s.caps = caps
	s.file = file
	s.loadedAt = time.Now()
	s.adm = newAdmission(s.cfg.MaxQueueDepth, s.width(opts.Parallel, eng, log), s.cfg.MaxWait)
	s.mu.Unlock()
	return caps, nil
}

// width is the number of concurrent engine calls. Parallel is honoured only
// for engines that declare themselves reentrant.
func (s *Service) width(parallel bool, eng engine.Engine, log zerolog.Logger) int {
	if !parallel {
		return 1
	}
	if !engine.IsReentrant(eng) {
		log.Warn().Msg("parallel requested but engine is not reentrant; serializing calls")
		return 1
	}
	return s.cfg.MaxParallel
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("panic: %v", p.v) }

func safeLoad(ctx context.Context, eng engine.Engine, p engine.LoadParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{v: r}
		}
	}()
	return eng.Load(ctx, p)
}
