// Package config holds the configuration of the cart service.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*Config)(nil)

// Storage backends and write modes.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	WriteModeSync  = "sync"
	WriteModeAsync = "async"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	GRPC       config.GrpcServerConfig `koanf:"grpc"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Storage    StorageConfig           `koanf:"storage"`
	Database   config.DatabaseConfig   `koanf:"database"`
	Redis      config.RedisConfig      `koanf:"redis"`
	NATS       config.NATSConfig       `koanf:"nats"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
	IdP        config.IdP              `koanf:"idp"`
	Orders     OrdersConfig            `koanf:"orders"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	Cart       CartConfig              `koanf:"cart"`
}

// StorageConfig selects where cart partitions live and how they are written.
type StorageConfig struct {
	Backend      string        `koanf:"backend"`
	KeyPrefix    string        `koanf:"keyPrefix"`
	WriteMode    string        `koanf:"writeMode"`
	WriteTimeout time.Duration `koanf:"writeTimeout"`
}

func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  storage.backend: %s\n", c.Backend))
	b.WriteString(fmt.Sprintf("  storage.keyPrefix: %s\n", c.KeyPrefix))
	b.WriteString(fmt.Sprintf("  storage.writeMode: %s\n", c.WriteMode))
	b.WriteString(fmt.Sprintf("  storage.writeTimeout: %v\n", c.WriteTimeout))
	return b.String()
}

func (c *StorageConfig) Validate() error {
	if !slices.Contains([]string{BackendMemory, BackendPostgres, BackendRedis}, c.Backend) {
		return fmt.Errorf("storage.backend must be one of memory, postgres, redis, got %q", c.Backend)
	}
	if !slices.Contains([]string{WriteModeSync, WriteModeAsync}, c.WriteMode) {
		return fmt.Errorf("storage.writeMode must be sync or async, got %q", c.WriteMode)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("storage.writeTimeout must be greater than 0")
	}
	return nil
}

// OrdersConfig points at the order API.
type OrdersConfig struct {
	BaseURL string        `koanf:"baseURL"`
	Timeout time.Duration `koanf:"timeout"`
}

func (c *OrdersConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Orders API ---\n")
	b.WriteString(fmt.Sprintf("  orders.baseURL: %s\n", c.BaseURL))
	b.WriteString(fmt.Sprintf("  orders.timeout: %v\n", c.Timeout))
	return b.String()
}

func (c *OrdersConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("orders.baseURL is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("orders.timeout must be greater than 0")
	}
	return nil
}

// CartConfig holds the session and shipping rules.
type CartConfig struct {
	SessionIdleTTL        time.Duration `koanf:"sessionIdleTTL"`
	EvictionInterval      time.Duration `koanf:"evictionInterval"`
	FreeShippingThreshold float64       `koanf:"freeShippingThreshold"`
	ShippingFee           float64       `koanf:"shippingFee"`
}

func (c *CartConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Cart ---\n")
	b.WriteString(fmt.Sprintf("  cart.sessionIdleTTL: %v\n", c.SessionIdleTTL))
	b.WriteString(fmt.Sprintf("  cart.evictionInterval: %v\n", c.EvictionInterval))
	b.WriteString(fmt.Sprintf("  cart.freeShippingThreshold: %.2f\n", c.FreeShippingThreshold))
	b.WriteString(fmt.Sprintf("  cart.shippingFee: %.2f\n", c.ShippingFee))
	return b.String()
}

func (c *CartConfig) Validate() error {
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("cart.sessionIdleTTL must not be negative")
	}
	if c.SessionIdleTTL > 0 && c.EvictionInterval <= 0 {
		return fmt.Errorf("cart.evictionInterval must be greater than 0 when sessions expire")
	}
	if c.FreeShippingThreshold < 0 || c.ShippingFee < 0 {
		return fmt.Errorf("cart shipping amounts must not be negative")
	}
	return nil
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.GRPC.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.Storage.String())
	switch c.Storage.Backend {
	case BackendPostgres:
		b.WriteString(c.Database.String())
	case BackendRedis:
		b.WriteString(c.Redis.String())
	}
	b.WriteString(c.NATS.String())
	b.WriteString(c.Subscriber.String())
	b.WriteString(c.IdP.String())
	b.WriteString(c.Orders.String())
	b.WriteString(c.Resilience.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.Cart.String())
	return b.String()
}

// Validate checks if the configuration values are valid.
// Database and Redis are only checked when they back the storage.
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer, &c.GRPC, &c.Log, &c.PProf, &c.Shutdown, &c.Storage,
		&c.NATS, &c.Subscriber, &c.IdP, &c.Orders, &c.Resilience, &c.Telemetry, &c.Cart,
	}
	switch c.Storage.Backend {
	case BackendPostgres:
		validators = append(validators, &c.Database)
	case BackendRedis:
		validators = append(validators, &c.Redis)
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Subscriber.Enabled && !c.NATS.Enabled {
		return fmt.Errorf("subscriber is enabled but nats is not")
	}
	return nil
}
