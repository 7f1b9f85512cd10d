// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Termdamp/MatchMixer/pkg/metrics"
)

// Store drivers understood by the server.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the room store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the file path (sqlite) or connection URL (postgres).
	StoreDSN string `koanf:"store_dsn"`

	// CodeAttempts bounds how many room codes CreateRoom draws before giving up.
	CodeAttempts int `koanf:"code_attempts"`

	// WriteRetries bounds version-conflict retries of join/leave/kick.
	WriteRetries int `koanf:"write_retries"`

	// SubscriptionBuffer is the per-subscriber mailbox size before coalescing.
	SubscriptionBuffer int `koanf:"subscription_buffer"`

	// WSWriteTimeoutMS bounds a single websocket write.
	WSWriteTimeoutMS int `koanf:"ws_write_timeout_ms"`

	// WSPingIntervalMS is how often idle websocket connections are pinged.
	WSPingIntervalMS int `koanf:"ws_ping_interval_ms"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLabels are constant labels on every metric, as "env=prod,region=eu".
	MetricsLabels string `koanf:"metrics_labels"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8080",
		StoreDriver:        DriverMemory,
		StoreDSN:           "",
		CodeAttempts:       8,
		WriteRetries:       5,
		SubscriptionBuffer: 32,
		WSWriteTimeoutMS:   3000,
		WSPingIntervalMS:   20000,
		MetricsNamespace:   "matchmixer",
		MetricsSubsystem:   "lobby",
	}
}

// WSWriteTimeout returns WSWriteTimeoutMS as a duration.
func (c *Config) WSWriteTimeout() time.Duration {
	return time.Duration(c.WSWriteTimeoutMS) * time.Millisecond
}

// WSPingInterval returns WSPingIntervalMS as a duration.
func (c *Config) WSPingInterval() time.Duration {
	return time.Duration(c.WSPingIntervalMS) * time.Millisecond
}

// ConstLabels parses MetricsLabels.
func (c *Config) ConstLabels() (map[string]string, error) {
	labels := map[string]string{}
	for _, pair := range strings.Split(c.MetricsLabels, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("metrics label %q must look like name=value", pair)
		}
		if _, dup := labels[name]; dup {
			return nil, fmt.Errorf("metrics label %q given twice", name)
		}
		labels[name] = strings.TrimSpace(value)
	}
	if err := metrics.ValidLabels(labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CodeAttempts < 1:
		return fmt.Errorf("%w: code_attempts must be at least 1", ErrInvalidConfig)
	case c.WriteRetries < 0:
		return fmt.Errorf("%w: write_retries must not be negative", ErrInvalidConfig)
	case c.SubscriptionBuffer < 1:
		return fmt.Errorf("%w: subscription_buffer must be at least 1", ErrInvalidConfig)
	case !metrics.ValidName(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace %q is not a valid metric name", ErrInvalidConfig, c.MetricsNamespace)
	case !metrics.ValidName(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_subsystem %q is not a valid metric name", ErrInvalidConfig, c.MetricsSubsystem)
	}
	if _, err := c.ConstLabels(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for the %s driver", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
