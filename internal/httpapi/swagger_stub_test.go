//go:build !swagger

package httpapi

import (
	"net/http"
	"testing"
)

func TestSwaggerUI_AbsentWithoutBuildTag(t *testing.T) {
	h := NewMux(newMockService())
	w := do(t, h, http.MethodGet, "/swagger/index.html", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without the swagger tag, got %d", w.Code)
	}
	// the rest of the gateway is unaffected
	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}
