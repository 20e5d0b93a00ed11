package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// Log formats understood by bootstrap.NewLogger.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

var logLevels = []string{"", "debug", "info", "warn", "error"}

// LogConfig selects the level and encoding of the process logger. Empty values mean info and json.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func (c *LogConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Log ---\n")
	b.WriteString(fmt.Sprintf("  level: %s\n", c.Level))
	b.WriteString(fmt.Sprintf("  format: %s\n", c.Format))
	return b.String()
}

func (c *LogConfig) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(c.Level)) {
		return fmt.Errorf("unknown log level: %s", c.Level)
	}
	if !slices.Contains([]string{"", LogFormatJSON, LogFormatText}, strings.ToLower(c.Format)) {
		return fmt.Errorf("unknown log format: %s", c.Format)
	}
	return nil
}

// ShutdownConfig bounds how long each component may take to stop once a termination signal arrives.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

func (c *ShutdownConfig) String() string {
	return fmt.Sprintf("\n--- Shutdown ---\n  timeout: %s\n", c.Timeout)
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("shutdown timeout is not configured")
	}
	return nil
}

// PProfConfig exposes net/http/pprof on a separate listener, normally bound to localhost.
type PProfConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

func (c *PProfConfig) String() string {
	return fmt.Sprintf("\n--- PProf ---\n  enabled: %t\n  address: %s\n", c.Enabled, c.Addr)
}

func (c *PProfConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid pprof address %q: %w", c.Addr, err)
	}
	return nil
}
