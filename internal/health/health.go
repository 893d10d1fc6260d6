// Package health exposes a gRPC health-check service so orchestrators
// (k8s liveness/readiness probes) can supervise matchd without
// speaking the line protocol.
package health

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/luxfi/log"
)

// Server wraps the stock grpc/health implementation; matchd never
// defines its own health protobuf.
type Server struct {
	grpcServer *grpc.Server
	inner      *health.Server
	log        log.Logger
}

// New creates a Server serving SERVING for the empty service name
// (the whole-process liveness check) from the moment it's constructed.
func New() *Server {
	inner := health.NewServer()
	inner.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, inner)

	return &Server{
		grpcServer: grpcServer,
		inner:      inner,
		log:        log.Root().New("module", "health"),
	}
}

// SetServing sets the reported status of the whole-process check (the
// empty service name) to SERVING or NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.inner.SetServingStatus("", status)
}

// ListenAndServe binds addr and blocks serving gRPC health checks.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.log.Info("health server listening", "addr", addr)
	return s.grpcServer.Serve(ln)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() { s.grpcServer.GracefulStop() }
