// Package grpcapi exposes the backend service over gRPC as
// backend.Backend, using a JSON codec over the pkg/types messages, plus the
// standard grpc.health.v1 service.
package grpcapi

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"modelrunner/internal/backend"
	"modelrunner/pkg/types"
)

// Options configures a Server.
type Options struct {
	Logger zerolog.Logger
	// Health is the health server fed by a HealthPublisher. When nil a new
	// one is created and seeded from the current state only.
	Health *health.Server
	// Extra server options (credentials, limits).
	ServerOptions []grpc.ServerOption
}

// Server serves one backend.Service over gRPC.
type Server struct {
	svc      *backend.Service
	log      zerolog.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewServer(svc *backend.Service, opts Options) *Server {
	s := &Server{
		svc:    svc,
		log:    opts.Logger.With().Str("component", "grpc").Logger(),
		health: opts.Health,
	}
	if s.health == nil {
		s.health = health.NewServer()
		hp := NewHealthPublisher(s.health)
		hp.Publish(backend.Event{Name: backend.EventStateChanged, Fields: map[string]any{"to": string(svc.State())}})
	}
	so := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryInterceptor(s.log)),
		grpc.ChainStreamInterceptor(StreamInterceptor(s.log)),
	}, opts.ServerOptions...)
	s.server = grpc.NewServer(so...)
	RegisterBackendServer(s.server, &backendServer{svc: svc})
	healthpb.RegisterHealthServer(s.server, s.health)
	return s
}

// Listen binds address; Serve must be called afterwards.
func (s *Server) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "listening grpc server failed")
	}
	s.log.Info().Str("addr", listener.Addr().String()).Msg("grpc server listening")
	s.listener = listener
	return nil
}

// Address is the bound address, or "" before a successful Listen.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks serving on the bound listener.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("not listening")
	}
	return s.ServeListener(s.listener)
}

// ServeListener serves on an externally created listener.
func (s *Server) ServeListener(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "grpc serve")
	}
	return nil
}

// Stop drains in-flight calls until ctx is done, then closes them.
func (s *Server) Stop(ctx context.Context) {
	s.log.Info().Msg("grpc server stopping")
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}

// backendServer adapts backend.Service to BackendServer.
type backendServer struct {
	svc *backend.Service
}

func (b *backendServer) Health(ctx context.Context, _ *types.HealthMessage) (*types.Reply, error) {
	return b.svc.Health(), nil
}

func (b *backendServer) Predict(ctx context.Context, in *types.PredictOptions) (*types.Reply, error) {
	out, err := b.svc.Predict(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) LoadModel(ctx context.Context, in *types.ModelOptions) (*types.Result, error) {
	out, err := b.svc.LoadModel(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) PredictStream(in *types.PredictOptions, stream grpc.ServerStream) error {
	err := b.svc.PredictStream(stream.Context(), in, func(r *types.Reply) error {
		return stream.SendMsg(r)
	})
	return toStatus(err)
}

func (b *backendServer) Embedding(ctx context.Context, in *types.PredictOptions) (*types.EmbeddingResult, error) {
	out, err := b.svc.Embedding(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) GenerateImage(ctx context.Context, in *types.GenerateImageRequest) (*types.Result, error) {
	out, err := b.svc.GenerateImage(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) AudioTranscription(ctx context.Context, in *types.TranscriptRequest) (*types.TranscriptResult, error) {
	out, err := b.svc.AudioTranscription(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) TTS(ctx context.Context, in *types.TtsRequest) (*types.Result, error) {
	out, err := b.svc.TTS(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) TokenizeString(ctx context.Context, in *types.PredictOptions) (*types.TokenizationResponse, error) {
	out, err := b.svc.TokenizeString(ctx, in)
	return out, toStatus(err)
}

func (b *backendServer) Status(ctx context.Context, _ *types.HealthMessage) (*types.StatusResponse, error) {
	return b.svc.Status(), nil
}
