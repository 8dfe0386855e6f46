package grpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-backend/internal/observability"
)

// ServiceName is the health service name reported alongside the server-wide status.
const ServiceName = "chat.Backend"

// Probe checks one storage dependency.
type Probe = func(ctx context.Context) error

// HealthServer exposes grpc.health.v1 reflecting storage reachability.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	probes map[string]Probe
	logger zerolog.Logger

	mu      sync.Mutex
	serving bool
}

// NewHealthServer builds the gRPC server with tracing and metrics attached.
func NewHealthServer(probes map[string]Probe, logger zerolog.Logger) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &HealthServer{
		srv:     srv,
		health:  hs,
		probes:  probes,
		logger:  logger.With().Str("component", "grpc").Logger(),
		serving: true,
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health server listening")
	return s.srv.Serve(lis)
}

// Refresh runs every probe once and publishes the combined status.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	ok := true
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			s.logger.Warn().Err(err).Str("probe", name).Msg("health probe failed")
			ok = false
		}
	}

	s.mu.Lock()
	changed := ok != s.serving
	s.serving = ok
	s.mu.Unlock()

	if ok {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		s.logger.Info().Bool("serving", ok).Msg("health status changed")
	}
	return ok
}

// Watch refreshes the status every interval until ctx is done.
func (s *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval/2)
			s.Refresh(probeCtx)
			cancel()
		}
	}
}

// Shutdown marks the server NOT_SERVING and drains in-flight calls.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
