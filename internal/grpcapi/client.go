package grpcapi

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"modelrunner/pkg/types"
)

// Client is a typed client of backend.Backend, used by orchestrators, the
// probe command and tests.
type Client struct {
	cc *grpc.ClientConn
}

// Dial creates a client for target. Without extra options the connection is
// plaintext.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", target)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error { return c.cc.Close() }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
}

func (c *Client) Health(ctx context.Context) (*types.Reply, error) {
	out := new(types.Reply)
	return out, c.invoke(ctx, "Health", &types.HealthMessage{}, out)
}

func (c *Client) LoadModel(ctx context.Context, in *types.ModelOptions) (*types.Result, error) {
	out := new(types.Result)
	return out, c.invoke(ctx, "LoadModel", in, out)
}

func (c *Client) Predict(ctx context.Context, in *types.PredictOptions) (*types.Reply, error) {
	out := new(types.Reply)
	return out, c.invoke(ctx, "Predict", in, out)
}

func (c *Client) Embedding(ctx context.Context, in *types.PredictOptions) (*types.EmbeddingResult, error) {
	out := new(types.EmbeddingResult)
	return out, c.invoke(ctx, "Embedding", in, out)
}

func (c *Client) GenerateImage(ctx context.Context, in *types.GenerateImageRequest) (*types.Result, error) {
	out := new(types.Result)
	return out, c.invoke(ctx, "GenerateImage", in, out)
}

func (c *Client) AudioTranscription(ctx context.Context, in *types.TranscriptRequest) (*types.TranscriptResult, error) {
	out := new(types.TranscriptResult)
	return out, c.invoke(ctx, "AudioTranscription", in, out)
}

func (c *Client) TTS(ctx context.Context, in *types.TtsRequest) (*types.Result, error) {
	out := new(types.Result)
	return out, c.invoke(ctx, "TTS", in, out)
}

func (c *Client) TokenizeString(ctx context.Context, in *types.PredictOptions) (*types.TokenizationResponse, error) {
	out := new(types.TokenizationResponse)
	return out, c.invoke(ctx, "TokenizeString", in, out)
}

func (c *Client) Status(ctx context.Context) (*types.StatusResponse, error) {
	out := new(types.StatusResponse)
	return out, c.invoke(ctx, "Status", &types.HealthMessage{}, out)
}

// PredictStream calls fn for every chunk in order. It returns nil at the
// clean end of the stream, or the stream's single error. An error from fn
// cancels the call and is returned as is.
func (c *Client) PredictStream(ctx context.Context, in *types.PredictOptions, fn func(*types.Reply) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/PredictStream", grpc.CallContentSubtype(codecName))
	if err != nil {
		return err
	}
	// io.EOF means the server already ended the call; RecvMsg reports why.
	if err := stream.SendMsg(in); err != nil && err != io.EOF {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		r := new(types.Reply)
		err := stream.RecvMsg(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
}

// ServingStatus queries the standard health service for service ("" for
// the process, ServiceName for the model).
func (c *Client) ServingStatus(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.cc).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
