package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"modelrunner/pkg/types"
)

// LlamaServerBackend is the name of the llama.cpp server engine.
const LlamaServerBackend = "llama-server"

const defaultLlamaReadyTimeout = 30 * time.Second

// LlamaServer serves the model through a llama.cpp `llama-server` child
// process (or an already running server given by the server_url option),
// speaking its native HTTP API.
//
// Options (ModelOptions.Options):
//
//	server_url:<url>   attach to a running server instead of spawning one
//	args:<a b c>       extra command line arguments for the spawned server
type LlamaServer struct {
	cfg        Config
	log        zerolog.Logger
	httpClient *http.Client

	baseURL    string
	embeddings bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error
	stderr  *tailBuffer
}

// NewLlamaServer constructs an unloaded llama-server engine.
func NewLlamaServer(cfg Config) *LlamaServer {
	// Timeout=0: every request carries a context deadline instead.
	return &LlamaServer{
		cfg:        cfg,
		log:        cfg.Logger.With().Str("engine", LlamaServerBackend).Logger(),
		httpClient: &http.Client{Timeout: 0},
	}
}

func (s *LlamaServer) Load(ctx context.Context, p LoadParams) error {
	opts := ParseOptions(p.Options.Options)
	s.embeddings = p.Options.Embeddings
	if u := strings.TrimRight(opts["server_url"], "/"); u != "" {
		s.baseURL = u
		return s.waitReady(ctx)
	}
	if strings.TrimSpace(p.ModelFile) == "" {
		return errors.New("model file is required")
	}
	bin := s.cfg.LlamaServerBin
	if bin == "" {
		bin = "llama-server"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return ErrDependencyUnavailable(fmt.Sprintf("llama-server binary not found: %s", bin))
	}
	host := strings.TrimSpace(s.cfg.LlamaServerHost)
	if host == "" {
		host = "127.0.0.1"
	}
	port, err := pickFreePort(host)
	if err != nil {
		return err
	}
	s.baseURL = fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))

	o := p.Options
	args := []string{"-m", p.ModelFile, "--host", host, "--port", strconv.Itoa(port)}
	if o.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(o.ContextSize))
	}
	if o.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(o.GPULayers))
	}
	if o.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(o.Threads))
	}
	if o.Embeddings {
		args = append(args, "--embeddings")
	}
	if extra := strings.Fields(opts["args"]); len(extra) > 0 {
		args = append(args, extra...)
	}

	cmd := exec.Command(bin, args...)
	s.stderr = newTailBuffer(4096)
	cmd.Stderr = s.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llama-server: %w", err)
	}
	s.mu.Lock()
	s.cmd = cmd
	s.exited = make(chan struct{})
	s.mu.Unlock()
	s.log.Info().Int("pid", cmd.Process.Pid).Str("url", s.baseURL).Str("file", p.ModelFile).Msg("llama-server started")

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(s.exited)
	}()

	if err := s.waitReady(ctx); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// waitReady polls /health until the server answers 200, the process exits,
// the ready timeout passes or ctx is done.
func (s *LlamaServer) waitReady(ctx context.Context) error {
	timeout := s.cfg.LlamaReadyTimeout
	if timeout <= 0 {
		timeout = defaultLlamaReadyTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if s.healthy(ctx, time.Second) {
			s.log.Info().Str("url", s.baseURL).Msg("llama-server ready")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("llama-server not ready in time: %s", s.baseURL)
		case <-s.exitedCh():
			return fmt.Errorf("llama-server exited before ready: %v; stderr tail: %s", s.exitError(), s.stderr)
		case <-tick.C:
		}
	}
}

func (s *LlamaServer) healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// exitedCh returns a channel closed when the child exits; nil (blocks
// forever) in attach mode.
func (s *LlamaServer) exitedCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

func (s *LlamaServer) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *LlamaServer) Capabilities() Capability {
	c := CapPredict | CapPredictStream | CapTokenize
	if s.embeddings {
		c |= CapEmbedding
	}
	return c
}

type completionRequest struct {
	Prompt        string   `json:"prompt"`
	NPredict      int      `json:"n_predict,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	MinP          float32  `json:"min_p,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	IgnoreEOS     bool     `json:"ignore_eos,omitempty"`
	Stream        bool     `json:"stream"`
}

type completionResponse struct {
	Content         string `json:"content"`
	Stop            bool   `json:"stop"`
	TokensPredicted int    `json:"tokens_predicted"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	Timings         struct {
		PromptMS    float64 `json:"prompt_ms"`
		PredictedMS float64 `json:"predicted_ms"`
	} `json:"timings"`
}

func newCompletionRequest(o *types.PredictOptions, stream bool) completionRequest {
	return completionRequest{
		Prompt:        o.Prompt,
		NPredict:      o.Tokens,
		Temperature:   o.Temperature,
		TopK:          o.TopK,
		TopP:          o.TopP,
		MinP:          o.MinP,
		RepeatPenalty: o.Penalty,
		Seed:          o.Seed,
		Stop:          o.StopPrompts,
		IgnoreEOS:     o.IgnoreEOS,
		Stream:        stream,
	}
}

// post sends a JSON body and returns the response on 2xx. Transport errors
// after the child has exited are reported as fatal.
func (s *LlamaServer) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-s.exitedCh():
			return nil, fmt.Errorf("%w: llama-server exited: %v", ErrFatal, s.exitError())
		default:
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama-server http error: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (s *LlamaServer) Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error) {
	resp, err := s.post(ctx, "/completion", newCompletionRequest(opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	return &types.Reply{
		Message:                []byte(out.Content),
		Tokens:                 out.TokensPredicted,
		PromptTokens:           out.TokensEvaluated,
		TimingPromptProcessing: out.Timings.PromptMS / 1000,
		TimingTokenGeneration:  out.Timings.PredictedMS / 1000,
	}, nil
}

func (s *LlamaServer) PredictStream(ctx context.Context, opts *types.PredictOptions, emit func(string) error) error {
	resp, err := s.post(ctx, "/completion", newCompletionRequest(opts, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadString('\n')
		if l := strings.TrimSpace(line); strings.HasPrefix(l, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(l, "data:"))
			if data == "[DONE]" {
				return nil
			}
			var msg completionResponse
			if e := json.Unmarshal([]byte(data), &msg); e != nil {
				return fmt.Errorf("decode stream chunk: %w", e)
			}
			if msg.Content != "" {
				if e := emit(msg.Content); e != nil {
					return e
				}
			}
			if msg.Stop {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (s *LlamaServer) Embed(ctx context.Context, opts *types.PredictOptions) ([]float32, error) {
	text := opts.Embeddings
	if text == "" {
		text = opts.Prompt
	}
	resp, err := s.post(ctx, "/embedding", map[string]string{"content": text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(raw)
}

// decodeEmbedding accepts both the legacy {"embedding":[...]} shape and the
// newer [{"index":0,"embedding":[[...]]}] shape.
func decodeEmbedding(raw []byte) ([]float32, error) {
	var legacy struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &legacy); err == nil && len(legacy.Embedding) > 0 {
		return legacy.Embedding, nil
	}
	var list []struct {
		Embedding [][]float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(list) == 0 || len(list[0].Embedding) == 0 {
		return nil, errors.New("llama-server returned no embedding")
	}
	return list[0].Embedding[0], nil
}

func (s *LlamaServer) Tokenize(ctx context.Context, opts *types.PredictOptions) ([]int32, error) {
	resp, err := s.post(ctx, "/tokenize", map[string]string{"content": opts.Prompt})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Tokens []int32 `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tokenize: %w", err)
	}
	return out.Tokens, nil
}

// PID returns the child process id, or 0 when attached or stopped.
func (s *LlamaServer) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Reentrant is true; llama-server schedules concurrent requests onto its
// own slots.
func (s *LlamaServer) Reentrant() bool { return true }

// Close terminates a spawned server: SIGTERM first, kill after 2s.
func (s *LlamaServer) Close() error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.cmd = nil
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-exited
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Msg("llama-server stopped")
	return nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer { return &tailBuffer{limit: limit} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	t.mu.Unlock()
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
