package server

import (
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the health service and reflection.
func (s *Server) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(s.authToken),
		),
	)

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	return srv
}
