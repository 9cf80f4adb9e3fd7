package httpapi

import "time"

const defaultMaxBodyBytes = 1 << 20

// maxBodyBytes bounds JSON request bodies.
var maxBodyBytes int64 = defaultMaxBodyBytes

// SetMaxBodyBytes sets the maximum request body size; n <= 0 restores 1 MiB.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// requestTimeout bounds inference requests (unary and stream).
// Zero means no additional timeout beyond server/connection timeouts.
var requestTimeout time.Duration

// SetRequestTimeout sets the inference timeout (0 disables).
func SetRequestTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	requestTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
