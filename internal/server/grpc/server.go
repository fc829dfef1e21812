package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Checker reports whether the session is healthy. *runtime.Runtime
// satisfies it.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// Server owns the gRPC server instance.
type Server struct {
	health *healthSvc
	grpc   *grpc.Server
	lis    net.Listener
}

// New constructs a gRPC server and registers the health service.
func New(c Checker, opts ...grpc.ServerOption) *Server {
	s := &Server{health: newHealthSvc(c), grpc: grpc.NewServer(opts...)}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.Stop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
