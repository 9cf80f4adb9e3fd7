package httpapi

import (
	"encoding/json"
	"net/http"

	"modelrunner/internal/backend"
	"modelrunner/pkg/types"
)

// StatusClientClosedRequest is the nginx convention for a request the
// client abandoned.
const StatusClientClosedRequest = 499

var kindStatus = map[backend.Kind]int{
	backend.KindNotLoaded:      http.StatusConflict,
	backend.KindAlreadyLoaded:  http.StatusConflict,
	backend.KindUnsupported:    http.StatusNotImplemented,
	backend.KindInvalidRequest: http.StatusBadRequest,
	backend.KindRuntime:        http.StatusInternalServerError,
	backend.KindCancelled:      StatusClientClosedRequest,
	backend.KindInternal:       http.StatusInternalServerError,
	backend.KindBusy:           http.StatusTooManyRequests,
}

// StatusOf maps an error to its HTTP status and kind.
func StatusOf(err error) (int, backend.Kind) {
	k := backend.KindOf(err)
	if code, ok := kindStatus[k]; ok {
		return code, k
	}
	return http.StatusInternalServerError, k
}

// writeError writes the JSON error payload for err.
func writeError(w http.ResponseWriter, err error) int {
	code, kind := StatusOf(err)
	if code == http.StatusTooManyRequests {
		IncrementBackpressure(string(kind))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: err.Error(), Kind: string(kind), Code: code})
	return code
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
