package config

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberConfig configures a durable JetStream pull consumer on a stream owned by another service.
// Batch messages are fetched per pull, waiting at most Timeout; Interval is the back-off after a failed pull.
type SubscriberConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Stream   string        `koanf:"stream"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Batch    int           `koanf:"batch"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
}

func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Enabled))
	b.WriteString(fmt.Sprintf("  %s <- %s as %s\n", c.Stream, c.Subject, c.Consumer))
	b.WriteString(fmt.Sprintf("  workers: %d, batch: %d\n", c.Workers, c.Batch))
	b.WriteString(fmt.Sprintf("  timeout: %s, interval: %s\n", c.Timeout, c.Interval))
	return b.String()
}

func (c *SubscriberConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	for name, value := range map[string]string{"stream": c.Stream, "subject": c.Subject, "consumer": c.Consumer} {
		if value == "" {
			return fmt.Errorf("subscriber.%s is not configured", name)
		}
	}
	if c.Batch <= 0 || c.Workers <= 0 {
		return fmt.Errorf("subscriber.batch and subscriber.workers must be greater than zero")
	}
	if c.Timeout <= 0 || c.Interval <= 0 {
		return fmt.Errorf("subscriber.timeout and subscriber.interval must be greater than zero")
	}
	return nil
}
