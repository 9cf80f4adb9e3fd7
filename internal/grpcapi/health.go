package grpcapi

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"modelrunner/internal/backend"
	"modelrunner/pkg/types"
)

// HealthPublisher mirrors the model lifecycle into the standard gRPC health
// service: the process ("") is always SERVING, ServiceName only when ready.
type HealthPublisher struct {
	srv *health.Server
}

func NewHealthPublisher(srv *health.Server) *HealthPublisher {
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthPublisher{srv: srv}
}

func (p *HealthPublisher) Publish(e backend.Event) {
	if e.Name != backend.EventStateChanged {
		return
	}
	to, _ := e.Fields["to"].(string)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if types.ModelState(to) == types.StateReady {
		st = healthpb.HealthCheckResponse_SERVING
	}
	p.srv.SetServingStatus(ServiceName, st)
}
