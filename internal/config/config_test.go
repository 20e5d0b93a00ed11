package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.HTTPServer.Port = 8080
	cfg.HTTPServer.Timeout.Read = time.Second
	cfg.HTTPServer.Timeout.Write = time.Second
	cfg.HTTPServer.Timeout.Idle = time.Second
	cfg.HTTPServer.Timeout.ReadHeader = time.Second
	cfg.GRPC.Port = "9090"
	cfg.Shutdown.Timeout = time.Second
	cfg.Storage = StorageConfig{Backend: BackendMemory, WriteMode: WriteModeSync, WriteTimeout: time.Second}
	cfg.Orders = OrdersConfig{BaseURL: "http://orders", Timeout: time.Second}
	cfg.Resilience.CircuitBreaker.ConsecutiveFailures = 5
	cfg.Resilience.CircuitBreaker.ErrorRatePercent = 60
	cfg.Resilience.CircuitBreaker.OpenTimeout = time.Second
	cfg.Cart = CartConfig{SessionIdleTTL: time.Minute, EvictionInterval: time.Second, FreeShippingThreshold: 500, ShippingFee: 50}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "mongo" }, wantErr: "storage.backend"},
		{name: "unknown write mode", mutate: func(c *Config) { c.Storage.WriteMode = "later" }, wantErr: "storage.writeMode"},
		{name: "no write timeout", mutate: func(c *Config) { c.Storage.WriteTimeout = 0 }, wantErr: "storage.writeTimeout"},
		{
			name:    "postgres requires database",
			mutate:  func(c *Config) { c.Storage.Backend = BackendPostgres },
			wantErr: "database",
		},
		{
			name: "postgres with database",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendPostgres
				c.Database.URL = "postgresql://u:p@localhost:5432/cart"
				c.Database.Timeout = time.Second
			},
		},
		{
			name:    "redis requires address",
			mutate:  func(c *Config) { c.Storage.Backend = BackendRedis },
			wantErr: "redis address",
		},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendRedis
				c.Redis.Addr = "localhost:6379"
				c.Redis.Timeout = time.Second
			},
		},
		{name: "no orders url", mutate: func(c *Config) { c.Orders.BaseURL = "" }, wantErr: "orders.baseURL"},
		{name: "negative shipping fee", mutate: func(c *Config) { c.Cart.ShippingFee = -1 }, wantErr: "shipping"},
		{name: "expiring sessions need an interval", mutate: func(c *Config) { c.Cart.EvictionInterval = 0 }, wantErr: "evictionInterval"},
		{
			name:   "sessions that never expire need no interval",
			mutate: func(c *Config) { c.Cart.SessionIdleTTL, c.Cart.EvictionInterval = 0, 0 },
		},
		{name: "enabled nats needs url", mutate: func(c *Config) { c.NATS.Enabled = true }, wantErr: "NATS URL"},
		{
			name: "subscriber requires nats",
			mutate: func(c *Config) {
				c.Subscriber = pkgconfig.SubscriberConfig{
					Enabled: true, Stream: "ORDERS", Subject: "orders.paid", Consumer: "cart",
					Batch: 1, Timeout: time.Second, Interval: time.Second, Workers: 1,
				}
			},
			wantErr: "subscriber is enabled but nats is not",
		},
		{name: "bad shutdown", mutate: func(c *Config) { c.Shutdown.Timeout = 0 }, wantErr: "shutdown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// given
			cfg := validConfig()
			tc.mutate(cfg)

			// when
			err := cfg.Validate()

			// then
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_String_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = BackendPostgres
	cfg.Database.URL = "postgresql://cart:secret@db:5432/cart"

	s := cfg.String()

	assert.NotContains(t, s, "secret")
	assert.Contains(t, s, "storage.backend: postgres")
}

func TestLoad_SampleConfig(t *testing.T) {
	// given
	sample, err := os.ReadFile(filepath.Join("..", "..", "config.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), sample, 0o600))
	t.Chdir(dir)
	t.Setenv("CART_STORAGE_BACKEND", "redis")
	t.Setenv("CART_CART_SHIPPINGFEE", "40")

	// when
	cfg, err := configloader.Load[*Config]("cart")

	// then
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPServer.Port)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "cart:", cfg.Storage.KeyPrefix)
	assert.Equal(t, WriteModeAsync, cfg.Storage.WriteMode)
	assert.Equal(t, 720*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Cart.SessionIdleTTL)
	assert.Equal(t, 500.0, cfg.Cart.FreeShippingThreshold)
	assert.Equal(t, 40.0, cfg.Cart.ShippingFee)
	assert.Equal(t, uint32(5), cfg.Resilience.CircuitBreaker.ConsecutiveFailures)
}
