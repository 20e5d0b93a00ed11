// Package main runs the cart service: the REST API over per-principal carts, checkout and the health endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/subscriber"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "cart"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the storage backend and starts the HTTP, gRPC and pprof servers.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	meterProvider, err := telemetry.NewMeterProvider("cart-service", prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to create meter provider: %w", err)
	}
	defer shutdownWithTimeout(logger, "meter provider", cfg.Shutdown.Timeout, meterProvider.Shutdown)

	if cfg.Telemetry.Traces.Enabled {
		tracerProvider, err := telemetry.NewTracerProvider(ctx, "cart-service", cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer shutdownWithTimeout(logger, "tracer provider", cfg.Shutdown.Timeout, tracerProvider.Shutdown)
	}

	infra, closeInfra, err := setupInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfra()

	deps := app.SetupDependencies(infra, cfg, logger)
	httpServer := app.SetupHttpServer(deps, cfg)
	grpcServer := app.SetupGrpcServer(deps, cfg.GRPC.ReflectionEnabled)
	pprofServer := &http.Server{
		Addr: cfg.PProf.Addr,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Start the gRPC server
	g.Go(func() error {
		grpcAddr := ":" + cfg.GRPC.Port
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	// gracefully shutdown gRPC server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down gRPC server...")
		deps.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("gRPC server stopped gracefully.")
			return nil
		case <-time.After(cfg.Shutdown.Timeout):
			logger.Warn("gRPC server graceful stop timed out. Forcing stop.")
			grpcServer.Stop()
			return fmt.Errorf("grpc server graceful stop timed out")
		}
	})

	// Drop carts nobody touched for a while; they are reloaded from storage on next use
	if cfg.Cart.SessionIdleTTL > 0 && cfg.Cart.EvictionInterval > 0 {
		g.Go(func() error {
			evictIdle(gCtx, deps.Carts, cfg.Cart.EvictionInterval, logger)
			return nil
		})
	}

	// Clear carts whose pending orders were paid
	if cfg.Subscriber.Enabled {
		g.Go(func() error {
			logger.Info("Payment subscriber started", "stream", cfg.Subscriber.Stream, "subject", cfg.Subscriber.Subject)
			err := subscriber.Start(gCtx, infra.JetStream, cfg.Subscriber, deps.Carts, logger)
			if errors.Is(err, context.Canceled) {
				logger.Info("Payment subscriber stopped gracefully.")
				return nil
			}
			return err
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// setupInfra connects the partition store, the snapshot mirror, the event publisher and the token verifier.
// The returned func flushes pending writes and releases every connection.
func setupInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app.Infra, func(), error) {
	store, closeStore, err := app.NewPartitionStore(ctx, cfg)
	if err != nil {
		return app.Infra{}, nil, err
	}
	logger.Info("Cart storage ready", "backend", cfg.Storage.Backend, "write_mode", cfg.Storage.WriteMode)
	mirror, closeMirror := app.NewMirror(store, cfg.Storage, logger)

	publisher, js, closePublisher, err := app.NewPublisher(ctx, cfg.NATS)
	if err != nil {
		closeStore()
		return app.Infra{}, nil, fmt.Errorf("failed to set up event publisher: %w", err)
	}
	verifier, err := app.NewVerifier(ctx, cfg.IdP)
	if err != nil {
		closePublisher()
		closeStore()
		return app.Infra{}, nil, err
	}

	infra := app.Infra{
		Partitions: store,
		Mirror:     mirror,
		Publisher:  publisher,
		JetStream:  js,
		Verifier:   verifier,
		Submitter:  app.NewOrdersClient(cfg, logger),
		Metrics:    prometheus.DefaultGatherer,
	}
	closeAll := func() {
		shutdownWithTimeout(logger, "cart mirror", cfg.Shutdown.Timeout, closeMirror)
		closePublisher()
		closeStore()
	}
	return infra, closeAll, nil
}

func evictIdle(ctx context.Context, carts *service.Service, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := carts.EvictIdle(now); n > 0 {
				logger.Debug("evicted idle carts", "count", n, "remaining", carts.Sessions())
			}
		}
	}
}

func shutdownWithTimeout(logger *slog.Logger, name string, timeout time.Duration, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Error("failed to shut down "+name, "error", err)
	}
}
