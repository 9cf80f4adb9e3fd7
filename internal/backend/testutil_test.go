package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"modelrunner/internal/engine"
	"modelrunner/pkg/types"
)

// fakeEngine is a configurable in-memory engine used for tests. It
// implements every capability interface; caps restricts what it declares.
type fakeEngine struct {
	caps engine.Capability

	loadErr   error
	loadPanic bool
	// loadGate, when set, blocks Load until closed.
	loadGate chan struct{}
	loading  chan struct{}

	reply     string
	predErr   error
	predPanic bool
	// predGate, when set, blocks Predict until closed or ctx is done.
	predGate chan struct{}

	tokens []string
	// streamForever emits "tok" until ctx is done.
	streamForever bool
	streamErr     error
	streamDone    chan struct{}
	doneOnce      sync.Once
	emitted       atomic.Int64

	// reentrant is what the engine declares through Reentrant.
	reentrant bool

	closed atomic.Int64
	calls  atomic.Int64
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		caps:       engine.CapAll,
		reply:      "hello",
		tokens:     []string{"a", "b", "c"},
		streamDone: make(chan struct{}),
		loading:    make(chan struct{}, 1),
		reentrant:  true,
	}
}

func (f *fakeEngine) Load(ctx context.Context, p engine.LoadParams) error {
	select {
	case f.loading <- struct{}{}:
	default:
	}
	if f.loadGate != nil {
		select {
		case <-f.loadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.loadPanic {
		panic("load exploded")
	}
	return f.loadErr
}

func (f *fakeEngine) Capabilities() engine.Capability { return f.caps }

func (f *fakeEngine) Reentrant() bool { return f.reentrant }

func (f *fakeEngine) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeEngine) Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error) {
	f.calls.Add(1)
	if f.predGate != nil {
		select {
		case <-f.predGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.predPanic {
		panic("predict exploded")
	}
	if f.predErr != nil {
		return nil, f.predErr
	}
	return &types.Reply{Message: []byte(f.reply + ":" + opts.Prompt), Tokens: 1}, nil
}

func (f *fakeEngine) PredictStream(ctx context.Context, opts *types.PredictOptions, emit func(string) error) error {
	defer f.doneOnce.Do(func() { close(f.streamDone) })
	if f.streamForever {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := emit("tok"); err != nil {
				return err
			}
			f.emitted.Add(1)
		}
	}
	for _, t := range f.tokens {
		if err := emit(opts.Prompt + "-" + t); err != nil {
			return err
		}
		f.emitted.Add(1)
	}
	return f.streamErr
}

func (f *fakeEngine) Embed(ctx context.Context, opts *types.PredictOptions) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (f *fakeEngine) GenerateImage(ctx context.Context, req *types.GenerateImageRequest) error {
	return nil
}

func (f *fakeEngine) Transcribe(ctx context.Context, req *types.TranscriptRequest) (*types.TranscriptResult, error) {
	return &types.TranscriptResult{Text: "heard"}, nil
}

func (f *fakeEngine) TTS(ctx context.Context, req *types.TtsRequest) error { return nil }

func (f *fakeEngine) Tokenize(ctx context.Context, opts *types.PredictOptions) ([]int32, error) {
	return []int32{1, 2, 3}, nil
}

// fakeSampler reports a fixed memory figure.
func fakeSampler(pids ...int) (*types.MemoryUsageData, error) {
	return &types.MemoryUsageData{Total: 42, Breakdown: map[string]uint64{"rss": 42}}, nil
}

func fakeCPU(pids ...int) (float64, error) { return 12.5, nil }

// newTestService returns a Service whose "fake" backend yields fe.
func newTestService(t *testing.T, fe *fakeEngine, mutate ...func(*Config)) *Service {
	t.Helper()
	reg := engine.NewRegistry(engine.Config{})
	reg.Register("fake", func(engine.Config) engine.Engine { return fe })
	cfg := Config{
		Engines:        reg,
		DefaultBackend: "fake",
		MaxWait:        time.Second,
		Sampler:        fakeSampler,
		CPU:            fakeCPU,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s := New(cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// loadFake loads the fake backend and fails the test on error.
func loadFake(t *testing.T, s *Service, opts ...func(*types.ModelOptions)) {
	t.Helper()
	mo := &types.ModelOptions{Model: "m1"}
	for _, o := range opts {
		o(mo)
	}
	res, err := s.LoadModel(testCtx(t), mo)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if !res.Success {
		t.Fatalf("LoadModel result: %+v", res)
	}
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// collector records stream chunks.
type collector struct {
	mu     sync.Mutex
	chunks []string
	failAt int
}

var errSendFailed = errors.New("send failed")

func (c *collector) send(r *types.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.chunks) == c.failAt {
		return errSendFailed
	}
	c.chunks = append(c.chunks, string(r.Message))
	return nil
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}
