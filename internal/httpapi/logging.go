package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer; silent until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from MODELRUNNER_HTTP_LOG.
var defaultLogLevel = parseLevel(os.Getenv("MODELRUNNER_HTTP_LOG"))

// SetDefaultLogLevel overrides the per-request default ("off", "error",
// "info", "debug").
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLog carries per-request logging state for one handler.
type requestLog struct {
	lvl   LogLevel
	log   zerolog.Logger
	start time.Time
}

func newRequestLog(r *http.Request, op string) *requestLog {
	ctx := zlog.With().Str("path", r.URL.Path).Str("op", op)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ctx = ctx.Str("request_id", rid)
	}
	rl := &requestLog{lvl: requestLogLevel(r), log: ctx.Logger(), start: time.Now()}
	if rl.lvl >= LevelInfo {
		rl.log.Info().Msg("request start")
	}
	return rl
}

// end logs the outcome: failures from LevelError, successes from LevelInfo.
func (rl *requestLog) end(status int, err error) {
	switch {
	case err != nil && rl.lvl >= LevelError:
		rl.log.Error().Int("status", status).Dur("dur", time.Since(rl.start)).Err(err).Msg("request end")
	case err == nil && rl.lvl >= LevelInfo:
		rl.log.Info().Int("status", status).Dur("dur", time.Since(rl.start)).Msg("request end")
	}
}

// lineLogger logs complete NDJSON lines written to it at debug level.
type lineLogger struct {
	log zerolog.Logger
	buf []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := lw.buf[:idx]; len(line) > 0 {
			lw.log.Debug().RawJSON("line", line).Msg("stream>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
