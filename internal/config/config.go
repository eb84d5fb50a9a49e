// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig points at the GraphQL media API.
type UpstreamConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
	DNSCache   bool          `yaml:"dns_cache"`   // resolve through rs/dnscache
	DNSRefresh time.Duration `yaml:"dns_refresh"` // 0 = never refresh
}

// CacheConfig selects and tunes the media cache backend.
type CacheConfig struct {
	Backend        string        `yaml:"backend"` // "redis" or "memory"
	URL            string        `yaml:"url"`     // redis:// URL
	Timeout        time.Duration `yaml:"timeout"` // per operation
	MaxSize        int           `yaml:"max_size"`
	MaxTTL         time.Duration `yaml:"max_ttl"`
	DefaultTTL     time.Duration `yaml:"default_ttl"` // titles with no airing schedule
	CoalesceMisses bool          `yaml:"coalesce_misses"`
}

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // "" = serve /metrics on the main listener
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

// SlogLevel maps Level to a slog.Level. Unknown values are info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate rejects settings the gateway cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Upstream.Endpoint == "" {
		errs = append(errs, errors.New("upstream.endpoint is required"))
	}
	switch c.Cache.Backend {
	case "redis":
		if c.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required for the redis backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want redis or memory", c.Cache.Backend))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if r := c.Telemetry.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.tracing.sample_rate %v: want 0..1", r))
	}
	return errors.Join(errs...)
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} patterns with environment
// variable values. An unset variable without a default is left as is.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		sub := envPattern.FindSubmatch(match)
		if val, ok := os.LookupEnv(string(sub[1])); ok {
			return []byte(val)
		}
		if sub[2] != nil {
			return sub[2]
		}
		return match
	})
}

// Defaults returns the configuration used for any key the file leaves out.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: UpstreamConfig{
			Endpoint:   "https://graphql.anilist.co",
			Timeout:    10 * time.Second,
			DNSCache:   true,
			DNSRefresh: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:    "redis",
			URL:        "redis://localhost:6379",
			Timeout:    500 * time.Millisecond,
			MaxSize:    10_000,
			MaxTTL:     7 * 24 * time.Hour,
			DefaultTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Addr:    ":9090",
			},
			Tracing: TracingConfig{
				SampleRate: 1.0,
			},
		},
	}
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
