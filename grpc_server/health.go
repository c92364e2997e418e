// Package grpcserver exposes the process health over the gRPC Health
// Checking Protocol so orchestrators and Consul can probe it.
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Pinger reports whether the backing store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer mirrors database reachability into the standard health service.
type HealthServer struct {
	*health.Server
	db       Pinger
	services []string
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthServer reports status for the overall server ("") and for each
// named service. Everything starts NOT_SERVING until the first probe.
func NewHealthServer(db Pinger, interval time.Duration, logger *zap.Logger, services ...string) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{
		Server:   health.NewServer(),
		db:       db,
		services: append([]string{""}, services...),
		interval: interval,
		logger:   logger,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Probe pings the database once and publishes the result.
func (h *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Warn("Database ping failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(st)
	return st
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	for _, svc := range h.services {
		h.SetServingStatus(svc, st)
	}
}

// NewServer builds the gRPC server with the health and reflection services.
func NewServer(h *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)
	return s
}
