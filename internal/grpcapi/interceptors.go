package grpcapi

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	grpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	grpcRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelrunner",
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of gRPC requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	grpcInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelrunner",
			Subsystem: "grpc",
			Name:      "inflight_requests",
			Help:      "In-flight gRPC requests",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(grpcRequestsTotal, grpcRequestDuration, grpcInflight)
}

func observe(log zerolog.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	dur := time.Since(start)
	grpcRequestsTotal.WithLabelValues(method, code.String()).Inc()
	grpcRequestDuration.WithLabelValues(method).Observe(dur.Seconds())

	var ev *zerolog.Event
	switch {
	case err != nil:
		ev = log.Warn().Err(err)
	case isHealthMethod(method):
		ev = log.Debug()
	default:
		ev = log.Info()
	}
	ev.Str("method", method).Str("code", code.String()).Dur("dur", dur).Msg("grpc")
}

// isHealthMethod matches liveness calls that supervisors issue every few
// seconds.
func isHealthMethod(method string) bool {
	return method == "/"+ServiceName+"/Health" || strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// UnaryInterceptor logs and instruments unary calls.
func UnaryInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		grpcInflight.WithLabelValues(info.FullMethod).Inc()
		defer grpcInflight.WithLabelValues(info.FullMethod).Dec()
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(log, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamInterceptor logs and instruments streaming calls.
func StreamInterceptor(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		grpcInflight.WithLabelValues(info.FullMethod).Inc()
		defer grpcInflight.WithLabelValues(info.FullMethod).Dec()
		start := time.Now()
		err := handler(srv, ss)
		observe(log, info.FullMethod, start, err)
		return err
	}
}
