// Package httpapi is the JSON/HTTP gateway in front of the backend service.
// Unary operations map to POST endpoints under /v1; streaming generation is
// served as NDJSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelrunner/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Health() *types.Reply
	Status() *types.StatusResponse
	ListModels() ([]types.Model, error)
	LoadModel(ctx context.Context, opts *types.ModelOptions) (*types.Result, error)
	Predict(ctx context.Context, opts *types.PredictOptions) (*types.Reply, error)
	PredictStream(ctx context.Context, opts *types.PredictOptions, send func(*types.Reply) error) error
	Embedding(ctx context.Context, opts *types.PredictOptions) (*types.EmbeddingResult, error)
	GenerateImage(ctx context.Context, req *types.GenerateImageRequest) (*types.Result, error)
	AudioTranscription(ctx context.Context, req *types.TranscriptRequest) (*types.TranscriptResult, error)
	TTS(ctx context.Context, req *types.TtsRequest) (*types.Result, error)
	TokenizeString(ctx context.Context, opts *types.PredictOptions) (*types.TokenizationResponse, error)
}

// replyView is the JSON shape of a Reply: text instead of base64 bytes.
type replyView struct {
	Message                string  `json:"message"`
	Tokens                 int     `json:"tokens,omitempty"`
	PromptTokens           int     `json:"prompt_tokens,omitempty"`
	TimingPromptProcessing float64 `json:"timing_prompt_processing,omitempty"`
	TimingTokenGeneration  float64 `json:"timing_token_generation,omitempty"`
}

func viewOf(r *types.Reply) replyView {
	if r == nil {
		return replyView{}
	}
	return replyView{
		Message:                string(r.Message),
		Tokens:                 r.Tokens,
		PromptTokens:           r.PromptTokens,
		TimingPromptProcessing: r.TimingPromptProcessing,
		TimingTokenGeneration:  r.TimingTokenGeneration,
	}
}

// streamEnd is the last NDJSON line of a stream that failed after output
// had started.
type streamEnd struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(svc.Health().Message)
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if st.State == types.StateReady {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(st.State))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			models, err := svc.ListModels()
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if models == nil {
				models = []types.Model{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"models": models})
		})
		r.Post("/load", handle("load_model", svc.LoadModel))
		r.Post("/predict", handle("predict", func(ctx context.Context, o *types.PredictOptions) (replyView, error) {
			rep, err := svc.Predict(ctx, o)
			return viewOf(rep), err
		}))
		r.Post("/predict/stream", streamHandler(svc))
		r.Post("/embedding", handle("embedding", svc.Embedding))
		r.Post("/image", handle("generate_image", svc.GenerateImage))
		r.Post("/transcription", handle("audio_transcription", svc.AudioTranscription))
		r.Post("/tts", handle("tts", svc.TTS))
		r.Post("/tokenize", handle("tokenize_string", svc.TokenizeString))
	})

	return r
}

var errRejectedBody = errors.New("rejected request body")

// decodeJSON enforces the content type and body limit and decodes into req.
// On failure it writes the error response itself and returns its status;
// it returns 0 when req was decoded.
func decodeJSON(w http.ResponseWriter, r *http.Request, req any) int {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return http.StatusUnsupportedMediaType
	}
	// Limit body size (configurable, default 1MiB)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return http.StatusRequestEntityTooLarge
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return http.StatusBadRequest
	}
	return 0
}

// handle adapts a unary service call to an HTTP handler: JSON in, JSON out,
// failures through writeError.
func handle[Req, Resp any](op string, call func(context.Context, *Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rl := newRequestLog(r, op)
		req := new(Req)
		if code := decodeJSON(w, r, req); code != 0 {
			rl.end(code, errRejectedBody)
			return
		}
		ctx, cancel := requestContext(r.Context())
		defer cancel()
		resp, err := call(ctx, req)
		if err != nil {
			rl.end(writeError(w, err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		rl.end(http.StatusOK, nil)
	}
}

func streamHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rl := newRequestLog(r, "predict_stream")
		var req types.PredictOptions
		if code := decodeJSON(w, r, &req); code != 0 {
			rl.end(code, errRejectedBody)
			return
		}
		ctx, cancel := requestContext(r.Context())
		defer cancel()

		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		// Optional logging of NDJSON lines
		out := io.Writer(w)
		if rl.lvl >= LevelDebug {
			out = io.MultiWriter(w, &lineLogger{log: rl.log})
		}
		enc := json.NewEncoder(out)
		started := false
		err := svc.PredictStream(ctx, &req, func(chunk *types.Reply) error {
			if !started {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.WriteHeader(http.StatusOK)
				started = true
			}
			if err := enc.Encode(viewOf(chunk)); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			return nil
		})
		if err != nil && r.Context().Err() != nil {
			// client went away; nobody to answer
			rl.end(StatusClientClosedRequest, err)
			return
		}
		if !started {
			if err != nil {
				rl.end(writeError(w, err), err)
				return
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}
		end := streamEnd{Done: true}
		if err != nil {
			_, kind := StatusOf(err)
			end.Error, end.Kind = err.Error(), string(kind)
		}
		_ = enc.Encode(end)
		if flush != nil {
			flush()
		}
		rl.end(http.StatusOK, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Err(err).Msg("encode response")
	}
}
