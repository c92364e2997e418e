package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hkl-restful/config"
	"hkl-restful/database"
	grpcserver "hkl-restful/grpc_server"
	"hkl-restful/observability"
	"hkl-restful/registry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultJWTSecret = "default-very-insecure-secret-key"

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	config.InitConfig()

	logger, err := observability.NewLogger(config.AppConfig.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // Make sure the buffer is flushed before the program exits

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.AppConfig, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.JwtSecret == defaultJWTSecret {
		logger.Warn("Using the built-in JWT secret; set HKL_JWT_SECRET in production")
	}

	db, err := database.InitDB(cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := database.SeedInitialData(db, cfg.Seed, logger); err != nil {
		return fmt.Errorf("failed to seed initial data: %w", err)
	}

	app, err := newApplication(cfg, logger, db)
	if err != nil {
		return err
	}
	defer app.sqlDB.Close()

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           app.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	health := grpcserver.NewHealthServer(app.sqlDB, 10*time.Second, logger.Named("health"), cfg.ServiceName)
	grpcSrv := app.grpcServer(health)

	grpcLis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", cfg.GRPCPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		health.Run(gctx)
		return nil
	})

	if cfg.Consul.Enabled {
		deregister, err := registerWithConsul(cfg, logger)
		if err != nil {
			// Discovery is optional; serve anyway.
			logger.Error("Consul registration failed", zap.Error(err))
		} else {
			defer deregister()
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown did not complete", zap.Error(err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}
		return nil
	})

	return g.Wait()
}

// registerWithConsul announces the HTTP API and the gRPC health endpoint and
// returns a function that withdraws both.
func registerWithConsul(cfg config.Config, logger *zap.Logger) (func(), error) {
	sugar := logger.Sugar()
	reg, err := registry.NewConsulRegistry(cfg.Consul, sugar)
	if err != nil {
		return nil, err
	}

	host := cfg.Consul.CheckHost
	httpID := registry.InstanceID(cfg.ServiceName, host, cfg.HTTPPort)
	grpcID := registry.InstanceID(cfg.ServiceName+"-grpc", host, cfg.GRPCPort)

	registrations := []registry.Registration{
		{
			ID:      httpID,
			Name:    cfg.ServiceName,
			Address: host,
			Port:    cfg.HTTPPort,
			Tags:    []string{"http", "api"},
			Check:   registry.CreateHTTPCheck(httpID, host, cfg.HTTPPort, "/healthz", "10s", "2s"),
		},
		{
			ID:      grpcID,
			Name:    cfg.ServiceName + "-grpc",
			Address: host,
			Port:    cfg.GRPCPort,
			Tags:    []string{"grpc"},
			Check:   registry.CreateGRPCCheck(grpcID, fmt.Sprintf("%s:%d/%s", host, cfg.GRPCPort, cfg.ServiceName), "10s", "2s", false),
		},
	}

	var registered []string
	for _, r := range registrations {
		if err := reg.Register(r); err != nil {
			for _, id := range registered {
				_ = reg.Deregister(id)
			}
			return nil, err
		}
		registered = append(registered, r.ID)
	}

	return func() {
		for _, id := range registered {
			if err := reg.Deregister(id); err != nil {
				sugar.Warnw("Consul deregistration failed", "service_id", id, "error", err)
			}
		}
	}, nil
}
