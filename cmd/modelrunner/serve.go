package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"modelrunner/internal/backend"
	"modelrunner/internal/config"
	"modelrunner/internal/engine"
	"modelrunner/internal/grpcapi"
	"modelrunner/internal/httpapi"
	"modelrunner/pkg/types"
)

type serveOptions struct {
	configPath string

	grpcAddr       string
	httpAddr       string
	modelsDir      string
	defaultBackend string

	maxQueueDepth  int
	maxWait        time.Duration
	maxParallel    int
	streamBuffer   int
	maxPromptBytes int
	maxBodyBytes   int
	loadTimeout    time.Duration
	requestTimeout time.Duration
	shutdownWait   time.Duration

	logLevel     string
	httpLogLevel string

	llamaServerBin  string
	llamaServerHost string

	corsEnabled bool
	corsOrigins string
	corsMethods string
	corsHeaders string

	preloadModel   string
	preloadFile    string
	preloadBackend string
	preload        *types.ModelOptions

	// ready is called with the bound addresses once both listeners are up.
	ready func(grpcAddr, httpAddr string)
}

func newServeCmd() *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backend over gRPC and HTTP",
		Example: "  modelrunner serve --grpc-addr :50051 --http-addr :8080 --models-dir ~/models\n" +
			"  modelrunner serve --config modelrunner.yaml --preload-model tiny --preload-file tiny.gguf",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := func(name string) bool { return cmd.Flags().Changed(name) || envSet(name) }
			if o.configPath != "" {
				cfg, err := config.Load(o.configPath)
				if err != nil {
					return err
				}
				if err := o.applyConfig(cfg, explicit); err != nil {
					return err
				}
			}
			o.resolvePreload()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, o, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", envStr("config", ""), "Config file (.yaml, .json, .toml); flags and env override it")
	f.StringVar(&o.grpcAddr, "grpc-addr", envStr("grpc-addr", "127.0.0.1:50051"), "gRPC listen address")
	f.StringVar(&o.httpAddr, "http-addr", envStr("http-addr", ":8080"), "HTTP listen address (empty disables the gateway)")
	f.StringVar(&o.modelsDir, "models-dir", envStr("models-dir", ""), "Directory for relative model files")
	f.StringVar(&o.defaultBackend, "default-backend", envStr("default-backend", engine.EchoBackend), "Engine used when a load request names none")
	f.IntVar(&o.maxQueueDepth, "max-queue-depth", envInt("max-queue-depth", 32), "Requests admitted to the engine queue, running ones included")
	f.DurationVar(&o.maxWait, "max-wait", envDur("max-wait", 30*time.Second), "How long a request may wait for the engine before failing busy")
	f.IntVar(&o.maxParallel, "max-parallel", envInt("max-parallel", 4), "Concurrent engine calls for models loaded with parallel=true")
	f.IntVar(&o.streamBuffer, "stream-buffer", envInt("stream-buffer", 16), "Chunks buffered per stream before the engine is paused")
	f.IntVar(&o.maxPromptBytes, "max-prompt-bytes", envInt("max-prompt-bytes", 1<<20), "Largest accepted prompt")
	f.IntVar(&o.maxBodyBytes, "max-body-bytes", envInt("max-body-bytes", 1<<20), "Largest accepted HTTP request body")
	f.DurationVar(&o.loadTimeout, "load-timeout", envDur("load-timeout", 0), "Upper bound for one model load (0 disables)")
	f.DurationVar(&o.requestTimeout, "request-timeout", envDur("request-timeout", 0), "Upper bound for one HTTP inference request (0 disables)")
	f.DurationVar(&o.shutdownWait, "shutdown-timeout", envDur("shutdown-timeout", 5*time.Second), "Grace period for in-flight requests on shutdown")
	f.StringVar(&o.logLevel, "log-level", envStr("log-level", "info"), "Log level: debug|info|warn|error")
	f.StringVar(&o.httpLogLevel, "http-log-level", envStr("http-log-level", "off"), "Per-request HTTP log level: off|error|info|debug")
	f.StringVar(&o.llamaServerBin, "llama-server-bin", envStr("llama-server-bin", "llama-server"), "llama-server executable for the llama-server engine")
	f.StringVar(&o.llamaServerHost, "llama-server-host", envStr("llama-server-host", "127.0.0.1"), "Host llama-server binds to")
	f.BoolVar(&o.corsEnabled, "cors-enabled", envBool("cors-enabled", false), "Enable CORS on the HTTP gateway")
	f.StringVar(&o.corsOrigins, "cors-allowed-origins", envStr("cors-allowed-origins", ""), "Comma-separated allowed origins")
	f.StringVar(&o.corsMethods, "cors-allowed-methods", envStr("cors-allowed-methods", "GET,POST,OPTIONS"), "Comma-separated allowed methods")
	f.StringVar(&o.corsHeaders, "cors-allowed-headers", envStr("cors-allowed-headers", "Content-Type,X-Log-Level"), "Comma-separated allowed headers")
	f.StringVar(&o.preloadModel, "preload-model", envStr("preload-model", ""), "Model name loaded at startup")
	f.StringVar(&o.preloadFile, "preload-file", envStr("preload-file", ""), "Model file loaded at startup")
	f.StringVar(&o.preloadBackend, "preload-backend", envStr("preload-backend", ""), "Engine for the startup model")
	return cmd
}

// applyConfig fills every option not set by flag or environment from cfg.
func (o *serveOptions) applyConfig(cfg config.Config, explicit func(string) bool) error {
	str := func(flag string, dst *string, v string) {
		if v != "" && !explicit(flag) {
			*dst = v
		}
	}
	num := func(flag string, dst *int, v int) {
		if v > 0 && !explicit(flag) {
			*dst = v
		}
	}
	dur := func(flag string, dst *time.Duration, v time.Duration) {
		if v > 0 && !explicit(flag) {
			*dst = v
		}
	}
	list := func(flag string, dst *string, v []string) {
		if len(v) > 0 && !explicit(flag) {
			*dst = strings.Join(v, ",")
		}
	}

	maxWait, loadTimeout, requestTimeout, err := cfg.Durations()
	if err != nil {
		return err
	}
	str("grpc-addr", &o.grpcAddr, cfg.GRPCAddr)
	str("http-addr", &o.httpAddr, cfg.HTTPAddr)
	str("models-dir", &o.modelsDir, cfg.ModelsDir)
	str("default-backend", &o.defaultBackend, cfg.DefaultBackend)
	num("max-queue-depth", &o.maxQueueDepth, cfg.MaxQueueDepth)
	dur("max-wait", &o.maxWait, maxWait)
	num("max-parallel", &o.maxParallel, cfg.MaxParallel)
	num("stream-buffer", &o.streamBuffer, cfg.StreamBuffer)
	num("max-prompt-bytes", &o.maxPromptBytes, cfg.MaxPromptBytes)
	num("max-body-bytes", &o.maxBodyBytes, int(cfg.MaxBodyBytes))
	dur("load-timeout", &o.loadTimeout, loadTimeout)
	dur("request-timeout", &o.requestTimeout, requestTimeout)
	str("log-level", &o.logLevel, cfg.LogLevel)
	str("http-log-level", &o.httpLogLevel, cfg.HTTPLogLevel)
	str("llama-server-bin", &o.llamaServerBin, cfg.LlamaServerBin)
	str("llama-server-host", &o.llamaServerHost, cfg.LlamaServerHost)
	if cfg.CORSEnabled && !explicit("cors-enabled") {
		o.corsEnabled = true
	}
	list("cors-allowed-origins", &o.corsOrigins, cfg.CORSAllowedOrigins)
	list("cors-allowed-methods", &o.corsMethods, cfg.CORSAllowedMethods)
	list("cors-allowed-headers", &o.corsHeaders, cfg.CORSAllowedHeaders)
	o.preload = cfg.Preload.ModelOptions()
	return nil
}

// resolvePreload lets the preload flags override or replace the config
// file's preload section.
func (o *serveOptions) resolvePreload() {
	if o.preloadModel == "" && o.preloadFile == "" {
		return
	}
	if o.preload == nil {
		o.preload = &types.ModelOptions{}
	}
	if o.preloadModel != "" {
		o.preload.Model = o.preloadModel
	}
	if o.preloadFile != "" {
		o.preload.ModelFile = o.preloadFile
	}
	if o.preloadBackend != "" {
		o.preload.Backend = o.preloadBackend
	}
}

func newLogger(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "log level %q", level)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "modelrunner").Logger(), nil
}

func runServe(ctx context.Context, o *serveOptions, logOut io.Writer) error {
	log, err := newLogger(o.logLevel, logOut)
	if err != nil {
		return err
	}

	hs := health.NewServer()
	svc := backend.New(backend.Config{
		Engines: engine.DefaultRegistry(engine.Config{
			Logger:          log,
			LlamaServerBin:  o.llamaServerBin,
			LlamaServerHost: o.llamaServerHost,
		}),
		DefaultBackend: o.defaultBackend,
		ModelsDir:      o.modelsDir,
		MaxQueueDepth:  o.maxQueueDepth,
		MaxWait:        o.maxWait,
		MaxParallel:    o.maxParallel,
		StreamBuffer:   o.streamBuffer,
		MaxPromptBytes: o.maxPromptBytes,
		LoadTimeout:    o.loadTimeout,
		Logger:         log,
		Publisher:      backend.Publishers{grpcapi.NewHealthPublisher(hs)},
	})
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warn().Err(err).Msg("closing model")
		}
	}()

	var (
		hsrv *http.Server
		hl   net.Listener
	)
	if o.httpAddr != "" {
		httpapi.SetLogger(log.With().Str("component", "http").Logger())
		httpapi.SetDefaultLogLevel(o.httpLogLevel)
		httpapi.SetMaxBodyBytes(int64(o.maxBodyBytes))
		httpapi.SetRequestTimeout(o.requestTimeout)
		httpapi.SetCORSOptions(o.corsEnabled, splitCSV(o.corsOrigins), splitCSV(o.corsMethods), splitCSV(o.corsHeaders))
		httpapi.SetBaseContext(ctx)
		hl, err = net.Listen("tcp", o.httpAddr)
		if err != nil {
			return errors.Wrap(err, "listening http server failed")
		}
		hsrv = &http.Server{Handler: httpapi.NewMux(svc), ReadHeaderTimeout: 10 * time.Second}
		log.Info().Str("addr", hl.Addr().String()).Str("models_dir", o.modelsDir).Msg("http server listening")
	}

	gs := grpcapi.NewServer(svc, grpcapi.Options{Logger: log, Health: hs})
	if err := gs.Listen(o.grpcAddr); err != nil {
		if hl != nil {
			_ = hl.Close()
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gs.Serve)
	if hsrv != nil {
		g.Go(func() error {
			if err := hsrv.Serve(hl); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "http serve")
			}
			return nil
		})
	}
	if o.preload != nil {
		g.Go(func() error {
			res, err := svc.LoadModel(gctx, o.preload)
			if err != nil {
				// a failed preload leaves the process up in the failed state
				log.Error().Err(err).Msg("preload failed")
				return nil
			}
			log.Info().Str("result", res.Message).Msg("preload done")
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), o.shutdownWait)
		defer cancel()
		if hsrv != nil {
			if err := hsrv.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("graceful http shutdown")
			}
		}
		gs.Stop(sctx)
		return nil
	})
	if o.ready != nil {
		httpAddr := ""
		if hl != nil {
			httpAddr = hl.Addr().String()
		}
		o.ready(gs.Address(), httpAddr)
	}

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	return err
}
