package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"modelrunner/pkg/types"
)

// fakeLlamaServer mimics the llama.cpp server endpoints the engine uses.
func fakeLlamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/completion", func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Prompt == "boom" {
			http.Error(w, "context overflow", http.StatusInternalServerError)
			return
		}
		if !req.Stream {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"content":          "echo:" + req.Prompt,
				"tokens_predicted": 2,
				"tokens_evaluated": 1,
				"timings":          map[string]any{"prompt_ms": 10.0, "predicted_ms": 500.0},
			})
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"A", "B", "C"} {
			b, _ := json.Marshal(map[string]any{"content": tok, "stop": false})
			_, _ = w.Write([]byte("data: " + string(b) + "\n\n"))
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_, _ = w.Write([]byte(`data: {"content":"","stop":true}` + "\n\n"))
	})
	mux.HandleFunc("/embedding", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"embedding":[[0.5,0.25]]}]`))
	})
	mux.HandleFunc("/tokenize", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":[7,8,9]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func attachLlamaServer(t *testing.T, url string, embeddings bool) *LlamaServer {
	t.Helper()
	s := NewLlamaServer(Config{LlamaReadyTimeout: time.Second})
	p := LoadParams{Options: types.ModelOptions{Model: "m", Embeddings: embeddings, Options: []string{"server_url:" + url + "/"}}}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Load(ctx, p); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLlamaServer_AttachPredict(t *testing.T) {
	ts := fakeLlamaServer(t)
	s := attachLlamaServer(t, ts.URL, false)
	if s.PID() != 0 {
		t.Fatalf("attached server has no child pid")
	}
	if got := Negotiate(s); got != CapPredict|CapPredictStream|CapTokenize {
		t.Fatalf("capabilities: %v", got)
	}
	rep, err := s.Predict(context.Background(), &types.PredictOptions{Prompt: "hi", Tokens: 4})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if string(rep.Message) != "echo:hi" || rep.Tokens != 2 || rep.PromptTokens != 1 || rep.TimingTokenGeneration != 0.5 {
		t.Fatalf("reply: %+v", rep)
	}
	_, err = s.Predict(context.Background(), &types.PredictOptions{Prompt: "boom"})
	if err == nil || !strings.Contains(err.Error(), "context overflow") || IsFatal(err) {
		t.Fatalf("expected non-fatal http error, got %v", err)
	}
}

func TestLlamaServer_AttachStream(t *testing.T) {
	ts := fakeLlamaServer(t)
	s := attachLlamaServer(t, ts.URL, false)
	var got string
	err := s.PredictStream(context.Background(), &types.PredictOptions{Prompt: "hi"}, func(tok string) error {
		got += tok
		return nil
	})
	if err != nil || got != "ABC" {
		t.Fatalf("stream: %q %v", got, err)
	}
}

func TestLlamaServer_EmbedAndTokenize(t *testing.T) {
	ts := fakeLlamaServer(t)
	s := attachLlamaServer(t, ts.URL, true)
	if !s.Capabilities().Has(CapEmbedding) {
		t.Fatalf("embedding capability missing")
	}
	emb, err := s.Embed(context.Background(), &types.PredictOptions{Prompt: "x"})
	if err != nil || len(emb) != 2 || emb[0] != 0.5 {
		t.Fatalf("embed: %v %v", emb, err)
	}
	toks, err := s.Tokenize(context.Background(), &types.PredictOptions{Prompt: "x"})
	if err != nil || len(toks) != 3 || toks[2] != 9 {
		t.Fatalf("tokenize: %v %v", toks, err)
	}
}

func TestLlamaServer_AttachNotReady(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	s := NewLlamaServer(Config{LlamaReadyTimeout: 150 * time.Millisecond})
	err := s.Load(context.Background(), LoadParams{Options: types.ModelOptions{Options: []string{"server_url:" + ts.URL}}})
	if err == nil || !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("expected not ready error, got %v", err)
	}
}

func TestLlamaServer_MissingBinary(t *testing.T) {
	s := NewLlamaServer(Config{LlamaServerBin: "/nonexistent/llama-server"})
	err := s.Load(context.Background(), LoadParams{ModelFile: "/tmp/m.gguf"})
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if err := NewLlamaServer(Config{}).Load(context.Background(), LoadParams{}); err == nil {
		t.Fatalf("expected error without model file")
	}
}

func TestDecodeEmbedding(t *testing.T) {
	v, err := decodeEmbedding([]byte(`{"embedding":[1,2,3]}`))
	if err != nil || len(v) != 3 {
		t.Fatalf("legacy: %v %v", v, err)
	}
	if _, err := decodeEmbedding([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for empty list")
	}
	if _, err := decodeEmbedding([]byte(`nope`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(4)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if b.String() != "defg" {
		t.Fatalf("tail=%q", b.String())
	}
}
