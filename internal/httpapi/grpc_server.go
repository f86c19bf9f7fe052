package httpapi

import (
	"context"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// DependencyCheck reports whether a downstream dependency currently accepts traffic.
type DependencyCheck func() bool

// GRPCServer implements grpc.health.v1.Health. The empty service name and
// "authservice" report readiness; every other name is a registered dependency.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness    ReadyProbe
	dependencies map[string]DependencyCheck
}

// NewGRPCServer creates the gRPC health service.
func NewGRPCServer(r ReadyProbe, deps map[string]DependencyCheck) *GRPCServer {
	if r == nil {
		r = ReadyFunc(nil)
	}
	return &GRPCServer{readiness: r, dependencies: deps}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
}

// Check evaluates readiness or a dependency.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch name := req.GetService(); name {
	case "", serviceName:
		if err := s.readiness.Check(ctx); err != nil {
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	default:
		check, ok := s.dependencies[name]
		if !ok {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
		}
		if !check() {
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
}

// Services lists every name Check answers for.
func (s *GRPCServer) Services() []string {
	out := []string{"", serviceName}
	deps := make([]string, 0, len(s.dependencies))
	for name := range s.dependencies {
		deps = append(deps, name)
	}
	sort.Strings(deps)
	return append(out, deps...)
}
