// Package grpcserver exposes the standard gRPC health service so that
// orchestrators can check the process.
package grpcserver

import (
	"log"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pairchat/internal/observability"
)

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	service string
}

// New builds a server reporting health for service and for the overall
// process (the empty service name). Both start as NOT_SERVING.
func New(service string) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{grpc: srv, health: hs, service: service}
	s.SetServing(false)
	return s
}

// SetServing flips the reported status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("grpc health server listening addr=%s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop reports NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
