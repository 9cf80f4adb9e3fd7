package grpcapi

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"modelrunner/internal/backend"
	"modelrunner/pkg/types"
)

// startServer serves a fresh echo-backed service over an in-memory listener.
func startServer(t *testing.T) (*Client, *backend.Service) {
	t.Helper()
	hs := health.NewServer()
	svc := backend.New(backend.Config{
		Publisher: NewHealthPublisher(hs),
		Sampler: func(...int) (*types.MemoryUsageData, error) {
			return &types.MemoryUsageData{Total: 1}, nil
		},
	})
	srv := NewServer(svc, Options{Logger: zerolog.Nop(), Health: hs})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.ServeListener(lis) }()

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
		_ = svc.Close()
	})
	return c, svc
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScenario(t *testing.T) {
	c, _ := startServer(t)
	ctx := testCtx(t)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StateUnloaded, st.State)

	res, err := c.LoadModel(ctx, &types.ModelOptions{Model: "m1"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	rep, err := c.Predict(ctx, &types.PredictOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Message)

	var chunks []string
	err = c.PredictStream(ctx, &types.PredictOptions{Prompt: "one two three"}, func(r *types.Reply) error {
		chunks = append(chunks, string(r.Message))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two ", "three"}, chunks)

	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, st.State)
	assert.Contains(t, st.Capabilities, "tts")
	require.NotNil(t, st.Memory)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(h.Message))
}

func TestErrorCodes(t *testing.T) {
	c, _ := startServer(t)
	ctx := testCtx(t)

	_, err := c.Predict(ctx, &types.PredictOptions{Prompt: "hi"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, backend.KindNotLoaded, KindOf(err))

	err = c.PredictStream(ctx, &types.PredictOptions{Prompt: "hi"}, func(*types.Reply) error { return nil })
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.LoadModel(ctx, &types.ModelOptions{Model: "m", Options: []string{"capabilities:predict"}})
	require.NoError(t, err)

	_, err = c.LoadModel(ctx, &types.ModelOptions{Model: "m"})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.TTS(ctx, &types.TtsRequest{Text: "hi", Dst: "/tmp/x.wav"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
	assert.Equal(t, backend.KindUnsupported, KindOf(err))

	_, err = c.Predict(ctx, &types.PredictOptions{Prompt: "hi", Temperature: 9})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "temperature")
}

func TestStreamRuntimeErrorAfterChunks(t *testing.T) {
	c, _ := startServer(t)
	ctx := testCtx(t)
	_, err := c.LoadModel(ctx, &types.ModelOptions{Model: "m", Options: []string{"fail_after:2"}})
	require.NoError(t, err)

	var n int
	err = c.PredictStream(ctx, &types.PredictOptions{Prompt: "a b c d"}, func(*types.Reply) error {
		n++
		return nil
	})
	assert.Equal(t, codes.Unknown, status.Code(err))
	assert.Equal(t, backend.KindRuntime, KindOf(err))
	assert.Equal(t, 2, n)
}

func TestStreamClientCancel(t *testing.T) {
	c, svc := startServer(t)
	ctx := testCtx(t)
	_, err := c.LoadModel(ctx, &types.ModelOptions{Model: "m", Options: []string{"delay:20ms"}})
	require.NoError(t, err)

	stop := errors.New("enough")
	n := 0
	err = c.PredictStream(ctx, &types.PredictOptions{Prompt: "a b c d e f g h i j k l m n o p"}, func(*types.Reply) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)

	// the engine slot is released once the server notices the cancel
	assert.Eventually(t, func() bool {
		st := svc.Status()
		return st.Inflight == 0 && st.Queued == 0
	}, 2*time.Second, 10*time.Millisecond)
	_, err = c.Predict(ctx, &types.PredictOptions{Prompt: "still alive"})
	assert.NoError(t, err)
}

func TestHealthServiceTracksLifecycle(t *testing.T) {
	c, svc := startServer(t)
	ctx := testCtx(t)

	st, err := c.ServingStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	st, err = c.ServingStatus(ctx, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	_, err = c.LoadModel(ctx, &types.ModelOptions{Model: "m"})
	require.NoError(t, err)

	st, err = c.ServingStatus(ctx, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	require.NoError(t, svc.Close())
	st, err = c.ServingStatus(ctx, ServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)
}

func TestUnaryOperations(t *testing.T) {
	c, _ := startServer(t)
	ctx := testCtx(t)
	_, err := c.LoadModel(ctx, &types.ModelOptions{Model: "m", Options: []string{"dims:5"}})
	require.NoError(t, err)

	emb, err := c.Embedding(ctx, &types.PredictOptions{Embeddings: "hello"})
	require.NoError(t, err)
	assert.Len(t, emb.Embeddings, 5)

	tok, err := c.TokenizeString(ctx, &types.PredictOptions{Prompt: "a b"})
	require.NoError(t, err)
	assert.Equal(t, 2, tok.Length)

	dir := t.TempDir()
	res, err := c.GenerateImage(ctx, &types.GenerateImageRequest{PositivePrompt: "cat", Dst: dir + "/cat.png"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = c.TTS(ctx, &types.TtsRequest{Text: "hello", Dst: dir + "/hello.wav"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = c.AudioTranscription(ctx, &types.TranscriptRequest{Dst: dir + "/missing.txt"})
	assert.Equal(t, codes.Unknown, status.Code(err))
}

func TestCodeOf(t *testing.T) {
	cases := map[backend.Kind]codes.Code{
		backend.KindNotLoaded:      codes.FailedPrecondition,
		backend.KindAlreadyLoaded:  codes.AlreadyExists,
		backend.KindUnsupported:    codes.Unimplemented,
		backend.KindInvalidRequest: codes.InvalidArgument,
		backend.KindRuntime:        codes.Unknown,
		backend.KindCancelled:      codes.Canceled,
		backend.KindInternal:       codes.Internal,
		backend.KindBusy:           codes.ResourceExhausted,
		backend.Kind("bogus"):      codes.Internal,
	}
	for k, want := range cases {
		assert.Equal(t, want, CodeOf(k), "kind %s", k)
		if k != "bogus" {
			assert.Equal(t, k, KindOf(status.Error(want, "x")), "round trip %s", k)
		}
	}
	assert.Equal(t, backend.KindCancelled, KindOf(status.Error(codes.DeadlineExceeded, "x")))
	assert.Equal(t, backend.Kind(""), KindOf(nil))
	assert.NoError(t, toStatus(nil))
}

func TestAddressBeforeListen(t *testing.T) {
	svc := backend.New(backend.Config{})
	t.Cleanup(func() { _ = svc.Close() })
	srv := NewServer(svc, Options{Logger: zerolog.Nop()})
	assert.Equal(t, "", srv.Address())

	require.NoError(t, srv.Listen("127.0.0.1:0"))
	assert.NotEmpty(t, srv.Address())
	_ = srv.listener.Close()
}

func TestObserve_HealthCallsLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	start := time.Now()

	observe(log, "/"+ServiceName+"/Health", start, nil)
	observe(log, "/grpc.health.v1.Health/Check", start, nil)
	assert.Empty(t, buf.String())

	observe(log, "/"+ServiceName+"/Predict", start, nil)
	assert.Contains(t, buf.String(), `"method":"/`+ServiceName+`/Predict"`)

	buf.Reset()
	observe(log, "/"+ServiceName+"/Health", start, status.Error(codes.Unavailable, "down"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
