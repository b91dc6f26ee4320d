// Package config loads the wirehome-bus hub configuration.
//
// Configuration is a YAML document; every field has a default so an empty
// file (or no file at all) yields a runnable hub. Command-line flags in
// cmd/wirehome-bus override file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wirehome/wirehome-go/pkg/bus"
)

// Defaults.
const (
	DefaultListenAddress   = ":8080"
	DefaultInstanceName    = "wirehome"
	DefaultLogLevel        = "info"
	DefaultWebhookTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Subscription actions.
const (
	ActionLog     = "log"
	ActionWebhook = "webhook"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the hub configuration.
type Config struct {
	HTTP          HTTPConfig           `yaml:"http"`
	Broker        bus.BrokerConfig     `yaml:"broker"`
	Diagnostics   DiagnosticsConfig    `yaml:"diagnostics"`
	Discovery     DiscoveryConfig      `yaml:"discovery"`
	LogLevel      string               `yaml:"log_level"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`

	// StateFile stores subscriptions created through the API. Empty keeps
	// them in memory only.
	StateFile string `yaml:"state_file"`
}

// HTTPConfig configures the introspection API.
type HTTPConfig struct {
	// ListenAddress is the host:port the API listens on. Empty disables the API.
	ListenAddress string `yaml:"listen"`

	// ShutdownTimeout bounds graceful shutdown of the API server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DiagnosticsConfig selects the diagnostic sinks.
type DiagnosticsConfig struct {
	// File is a CBOR event log path. Empty disables it.
	File string `yaml:"file"`

	// Database is the SQLite fault journal path. Empty disables it.
	Database string `yaml:"database"`
}

// DiscoveryConfig configures mDNS advertising of the hub.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

// SubscriptionConfig declares a subscription created at startup.
type SubscriptionConfig struct {
	UID     string            `yaml:"uid"`
	Filter  map[string]string `yaml:"filter"`
	Action  string            `yaml:"action"`
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddress:   DefaultListenAddress,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Broker: bus.DefaultBrokerConfig(),
		Discovery: DiscoveryConfig{
			Instance: DefaultInstanceName,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Discovery.Instance == "" {
		c.Discovery.Instance = DefaultInstanceName
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.Action == "" {
			s.Action = ActionLog
		}
		if s.Action == ActionWebhook && s.Timeout <= 0 {
			s.Timeout = DefaultWebhookTimeout
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Broker.MaxSubscribers < 0 || c.Broker.FanOutLimit < 0 ||
		c.Broker.QueueSize < 0 || c.Broker.Workers < 0 {
		return fmt.Errorf("%w: broker limits must not be negative", ErrInvalidConfig)
	}
	if c.Discovery.Enabled && c.HTTP.ListenAddress == "" {
		return fmt.Errorf("%w: discovery requires http.listen", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		if s.UID == "" {
			return fmt.Errorf("%w: subscriptions[%d]: uid is required", ErrInvalidConfig, i)
		}
		if seen[s.UID] {
			return fmt.Errorf("%w: subscriptions[%d]: duplicate uid %q", ErrInvalidConfig, i, s.UID)
		}
		seen[s.UID] = true

		switch s.Action {
		case ActionLog:
		case ActionWebhook:
			if s.URL == "" {
				return fmt.Errorf("%w: subscriptions[%d]: webhook requires url", ErrInvalidConfig, i)
			}
		default:
			return fmt.Errorf("%w: subscriptions[%d]: unknown action %q", ErrInvalidConfig, i, s.Action)
		}
	}
	return nil
}

// ParseLevel maps a log level name onto an slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, level)
	}
}
