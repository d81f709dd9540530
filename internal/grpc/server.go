package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported to gRPC health checks.
const ServiceName = "astro-call-service"

// ReadinessFunc reports whether the service can take traffic.
type ReadinessFunc func(ctx context.Context) error

// Server exposes the standard gRPC health service (plus reflection) so
// orchestrators can probe the service the same way as the other microservices.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	ready  ReadinessFunc
	log    *zap.Logger
}

// NewServer creates a gRPC server with health and reflection registered.
func NewServer(ready ReadinessFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		srv:    grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log))),
		health: health.NewServer(),
		ready:  ready,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv)
	s.setServing(false)
	return s
}

// GRPC returns the underlying server for Serve/GracefulStop.
func (s *Server) GRPC() *grpc.Server { return s.srv }

// Health returns the health service (used in tests).
func (s *Server) Health() *health.Server { return s.health }

func (s *Server) setServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Probe runs the readiness check once and updates the serving status.
func (s *Server) Probe(ctx context.Context) bool {
	ok := true
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			s.log.Warn("readiness probe failed", zap.Error(err))
			ok = false
		}
	}
	s.setServing(ok)
	return ok
}

// WatchReadiness re-probes every interval until ctx is cancelled, then marks
// the service as shutting down.
func (s *Server) WatchReadiness(ctx context.Context, interval time.Duration) error {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return nil
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warn("grpc call failed", zap.String("method", info.FullMethod), zap.Duration("latency", time.Since(start)), zap.Error(err))
		} else {
			log.Debug("grpc call", zap.String("method", info.FullMethod), zap.Duration("latency", time.Since(start)))
		}
		return resp, err
	}
}
