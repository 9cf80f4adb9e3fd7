package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"modelrunner/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "backend.Backend"

// BackendServer is the server API of the backend.Backend service.
type BackendServer interface {
	Health(context.Context, *types.HealthMessage) (*types.Reply, error)
	Predict(context.Context, *types.PredictOptions) (*types.Reply, error)
	LoadModel(context.Context, *types.ModelOptions) (*types.Result, error)
	PredictStream(*types.PredictOptions, grpc.ServerStream) error
	Embedding(context.Context, *types.PredictOptions) (*types.EmbeddingResult, error)
	GenerateImage(context.Context, *types.GenerateImageRequest) (*types.Result, error)
	AudioTranscription(context.Context, *types.TranscriptRequest) (*types.TranscriptResult, error)
	TTS(context.Context, *types.TtsRequest) (*types.Result, error)
	TokenizeString(context.Context, *types.PredictOptions) (*types.TokenizationResponse, error)
	Status(context.Context, *types.HealthMessage) (*types.StatusResponse, error)
}

// unary builds the method descriptor for one request/response method, the
// way protoc-gen-go-grpc would for a proto service.
func unary[Req, Resp any](name string, call func(BackendServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BackendServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BackendServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func predictStreamHandler(srv any, stream grpc.ServerStream) error {
	in := new(types.PredictOptions)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BackendServer).PredictStream(in, stream)
}

// ServiceDesc describes backend.Backend for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", BackendServer.Health),
		unary("Predict", BackendServer.Predict),
		unary("LoadModel", BackendServer.LoadModel),
		unary("Embedding", BackendServer.Embedding),
		unary("GenerateImage", BackendServer.GenerateImage),
		unary("AudioTranscription", BackendServer.AudioTranscription),
		unary("TTS", BackendServer.TTS),
		unary("TokenizeString", BackendServer.TokenizeString),
		unary("Status", BackendServer.Status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "PredictStream",
			Handler:       predictStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "backend.proto",
}

// RegisterBackendServer registers srv on s.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&ServiceDesc, srv)
}
