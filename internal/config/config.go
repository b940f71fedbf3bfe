package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RemoteConfig holds remote document store configuration
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AuthToken      string        `yaml:"auth_token"`
}

// FallbackConfig holds local fallback store configuration
type FallbackConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "file"
	Path   string `yaml:"path"`
}

// CacheConfig holds resource cache configuration
type CacheConfig struct {
	DefaultTTL  time.Duration            `yaml:"default_ttl"`
	ListingTTLs map[string]time.Duration `yaml:"listing_ttls"`
}

// RetryConfig holds backoff executor configuration
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// BatchConfig holds batch writer configuration
type BatchConfig struct {
	Window  time.Duration `yaml:"window"`
	MaxSize int           `yaml:"max_size"`
}

// MonitorConfig holds connection monitor configuration
type MonitorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the sync client
type Config struct {
	OwnerID  string         `yaml:"owner_id"`
	Remote   RemoteConfig   `yaml:"remote"`
	Fallback FallbackConfig `yaml:"fallback"`
	Cache    CacheConfig    `yaml:"cache"`
	Retry    RetryConfig    `yaml:"retry"`
	Batch    BatchConfig    `yaml:"batch"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Remote.RequestTimeout == 0 {
		cfg.Remote.RequestTimeout = 10 * time.Second
	}

	if cfg.Fallback.Driver == "" {
		cfg.Fallback.Driver = "sqlite"
	}
	if cfg.Fallback.Path == "" {
		cfg.Fallback.Path = "daybook.db"
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 30 * time.Second
	}
	if cfg.Cache.ListingTTLs == nil {
		// Task listings churn faster than the rest.
		cfg.Cache.ListingTTLs = map[string]time.Duration{
			"tasks": 15 * time.Second,
		}
	}

	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1 * time.Second
	}

	if cfg.Batch.Window == 0 {
		cfg.Batch.Window = 100 * time.Millisecond
	}
	if cfg.Batch.MaxSize == 0 {
		cfg.Batch.MaxSize = 500
	}

	if cfg.Monitor.ProbeInterval == 0 {
		cfg.Monitor.ProbeInterval = 15 * time.Second
	}
	if cfg.Monitor.ProbeTimeout == 0 {
		cfg.Monitor.ProbeTimeout = 3 * time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9464
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Fallback.Driver != "sqlite" && c.Fallback.Driver != "file" {
		return fmt.Errorf("fallback.driver must be \"sqlite\" or \"file\"")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative")
	}
	if c.Batch.Window <= 0 {
		return fmt.Errorf("batch.window must be positive")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	return nil
}
