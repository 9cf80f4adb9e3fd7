package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"modelrunner/internal/backend"
	"modelrunner/pkg/types"
)

func TestE2E_Models_Load_Predict_Status(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf", "beta.gguf")
	srv, _ := newServer(t, backend.Config{ModelsDir: dir})

	// 1) GET /v1/models returns discovered models
	resp, body := httpGet(t, srv.URL+"/v1/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/models status=%d body=%s", resp.StatusCode, string(body))
	}
	var modelsResp struct {
		Models []types.Model `json:"models"`
	}
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/v1/models json: %v body=%s", err, string(body))
	}
	if len(modelsResp.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(modelsResp.Models))
	}

	// 2) Before a load /readyz is 503 and inference is rejected
	resp, body = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz expected 503, got %d body=%s", resp.StatusCode, string(body))
	}
	resp, _ = httpPostJSON(t, srv.URL+"/v1/predict", []byte(`{"prompt":"hello"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("/v1/predict before load expected 409, got %d", resp.StatusCode)
	}

	// 3) Load a file from the models dir with the echo engine
	resp, body = httpPostJSON(t, srv.URL+"/v1/load", []byte(`{"model_file":"`+models[0]+`","backend":"echo"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/load status=%d body=%s", resp.StatusCode, string(body))
	}
	resp, _ = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz after load expected 200, got %d", resp.StatusCode)
	}

	// 4) Streaming yields one NDJSON line per word plus the final line
	resp, body = httpPostJSON(t, srv.URL+"/v1/predict/stream", []byte(`{"prompt":"one two three"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/predict/stream status=%d body=%s", resp.StatusCode, string(body))
	}
	if n := bytes.Count(body, []byte("\n")); n != 4 {
		t.Fatalf("expected 4 NDJSON lines, got %d: %q", n, string(body))
	}

	// 5) Status reflects the loaded file
	resp, body = httpGet(t, srv.URL+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status status=%d body=%s", resp.StatusCode, string(body))
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if st.State != types.StateReady || st.Model != models[0] || st.LoadsTotal != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

// TestE2E_Backpressure429 verifies we return 429 Too Many Requests when the
// engine queue is full and the wait timeout elapses.
func TestE2E_Backpressure429(t *testing.T) {
	// Arrange: tiny queue depth and short wait to elicit 429 deterministically.
	srv, _ := newServer(t, backend.Config{
		MaxQueueDepth: 1,
		MaxWait:       5 * time.Millisecond,
	})
	resp, body := httpPostJSON(t, srv.URL+"/v1/load", []byte(`{"model":"slow","options":["delay:200ms"]}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/v1/load status=%d body=%s", resp.StatusCode, string(body))
	}

	var wg sync.WaitGroup
	codes := make(chan int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _ := httpPostJSON(t, srv.URL+"/v1/predict", []byte(`{"prompt":"hello"}`))
			codes <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(codes)

	var ok, busy int
	for c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			busy++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if ok < 1 || busy < 1 {
		t.Fatalf("expected at least one 200 and one 429, got ok=%d busy=%d", ok, busy)
	}
}

func TestE2E_FailedLoadThenRetry(t *testing.T) {
	dir, models := createTempModelsDir(t, "alpha.gguf")
	srv, _ := newServer(t, backend.Config{ModelsDir: dir})

	resp, body := httpPostJSON(t, srv.URL+"/v1/load", []byte(`{"model_file":"missing.gguf"}`))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for a missing file, got %d body=%s", resp.StatusCode, string(body))
	}
	resp, body = httpGet(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable || string(body) != "failed" {
		t.Fatalf("/readyz after failed load: %d %q", resp.StatusCode, string(body))
	}

	resp, body = httpPostJSON(t, srv.URL+"/v1/load", []byte(`{"model_file":"`+models[0]+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry load status=%d body=%s", resp.StatusCode, string(body))
	}
}
