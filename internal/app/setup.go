// Package app wires the cart service together: persistence, cart sessions, checkout and the servers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/identity"
	"github.com/abgdnv/storefront/internal/orders"
	"github.com/abgdnv/storefront/internal/partition"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// Infra holds the external systems the service runs on.
type Infra struct {
	Partitions partition.Store
	Mirror     cart.Mirror
	Publisher  messaging.Publisher
	JetStream  jetstream.JetStream
	Verifier   auth.Verifier
	Submitter  checkout.OrderSubmitter
	Metrics    prometheus.Gatherer
}

type Dependencies struct {
	Carts    *service.Service
	Checkout *checkout.Service
	Verifier auth.Verifier
	Metrics  prometheus.Gatherer
	Health   *health.Server
	Logger   *slog.Logger
}

func SetupDependencies(infra Infra, cfg *config.Config, logger *slog.Logger) *Dependencies {
	var opts []cart.Option
	if cfg.Storage.KeyPrefix != "" {
		opts = append(opts, cart.WithKeyPrefix(cfg.Storage.KeyPrefix))
	}
	carts := service.NewService(infra.Partitions, infra.Mirror, cfg.Cart.SessionIdleTTL, logger, opts...)

	pricing := checkout.Pricing{
		FreeShippingThreshold: decimal.NewFromFloat(cfg.Cart.FreeShippingThreshold),
		ShippingFee:           decimal.NewFromFloat(cfg.Cart.ShippingFee),
	}
	return &Dependencies{
		Carts:    carts,
		Checkout: checkout.NewService(carts, infra.Submitter, infra.Publisher, pricing, logger),
		Verifier: infra.Verifier,
		Metrics:  infra.Metrics,
		Health:   health.NewServer(),
		Logger:   logger,
	}
}

// SetupHttpHandler initializes the router with the cart, checkout, health and metrics routes.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	identify := identity.Middleware(deps.Verifier, deps.Logger)
	cartHandler := rest.NewHandler(deps.Carts, deps.Checkout, identify, deps.Logger)
	cartHandler.RegisterRoutes(mux)
	if deps.Metrics != nil {
		mux.Handle("/metrics", telemetry.MetricsHandler(deps.Metrics))
	}
}

// SetupHttpServer creates and configures the traced HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(cfg.HTTPServer, "cart-service", SetupHttpHandler(deps))
}

// SetupGrpcServer initializes the gRPC server, which serves the health service.
func SetupGrpcServer(deps *Dependencies, reflectionEnabled bool) *grpc.Server {
	return server.NewGRPCServer(reflectionEnabled, server.WithHealth(deps.Health))
}

// NewPartitionStore connects the configured backend. The returned func releases its connections.
func NewPartitionStore(ctx context.Context, cfg *config.Config) (partition.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		return partition.NewPgStore(dbPool), dbPool.Close, nil
	case config.BackendRedis:
		client, err := bootstrap.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return partition.NewRedisStore(client, cfg.Redis.TTL), func() { _ = client.Close() }, nil
	default:
		return partition.NewInMemoryStore(), func() {}, nil
	}
}

// NewMirror returns the writer of cart snapshots. The returned func waits for pending writes.
func NewMirror(store partition.Store, cfg config.StorageConfig, logger *slog.Logger) (cart.Mirror, func(context.Context) error) {
	if cfg.WriteMode == config.WriteModeAsync {
		m := partition.NewAsyncMirror(store, cfg.WriteTimeout, logger)
		return m, m.Close
	}
	return partition.NewSyncMirror(store, cfg.WriteTimeout, logger), func(context.Context) error { return nil }
}

// NewPublisher connects to JetStream and makes sure the checkout stream exists. The JetStream handle is returned
// for consumers. With NATS disabled events are dropped and the handle is nil.
func NewPublisher(ctx context.Context, cfg pkgconfig.NATSConfig) (messaging.Publisher, jetstream.JetStream, func(), error) {
	if !cfg.Enabled {
		return messaging.NopPublisher{}, nil, func() {}, nil
	}
	nc, err := pnats.NewClient(cfg.Url, cfg.Timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	js, err := pnats.NewJetStreamContext(nc)
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}
	if err := pnats.EnsureStream(ctx, js, cfg.Stream, messaging.CartsCheckedOutSubject); err != nil {
		nc.Close()
		return nil, nil, nil, err
	}
	return pnats.NewNatsPublisher(js), js, func() { _ = nc.Drain() }, nil
}

// NewVerifier returns the JWT verifier, or nil when tokens are not checked.
func NewVerifier(ctx context.Context, cfg pkgconfig.IdP) (auth.Verifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	v, err := auth.NewJWTVerifier(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
	}
	return v, nil
}

// NewOrdersClient creates the client of the order API.
func NewOrdersClient(cfg *config.Config, logger *slog.Logger) *orders.Client {
	return orders.NewClient(cfg.Orders.BaseURL, cfg.Orders.Timeout, cfg.Resilience.CircuitBreaker, logger)
}
