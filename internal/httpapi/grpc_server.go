package httpapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"elaqe.org/internal/obs"
)

// HealthServer is the standard gRPC health service backed by the readiness probe.
// Both the empty service name and serviceName are reported.
type HealthServer struct {
	*health.Server
	readiness readinessChecker
}

func NewHealthServer(r readinessChecker) *HealthServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
}

// Check re-evaluates readiness before answering.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.Refresh(ctx)
	return s.Server.Check(ctx, req)
}

// Refresh runs the readiness probe and publishes the result to watchers.
func (s *HealthServer) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		obs.LoggerFrom(ctx).Warn("readiness check failed")
	}
	obs.SetReady(status == healthpb.HealthCheckResponse_SERVING)
	s.SetServingStatus("", status)
	s.SetServingStatus(serviceName, status)
}
