// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Records       RecordsConfig       `yaml:"records"`
	Trip          TripConfig          `yaml:"trip"`
	Authority     AuthorityConfig     `yaml:"authority"`
	Orgdir        OrgdirConfig        `yaml:"orgdir"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT verification settings.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`
}

// RecordsConfig describes the submission record store and the aggregation
// caps layered on top of it.
type RecordsConfig struct {
	Driver        string        `yaml:"driver"`
	DSNEnv        string        `yaml:"dsn_env"`
	PageSize      int           `yaml:"page_size"`
	MaxPages      int           `yaml:"max_pages"`
	MaxItems      int           `yaml:"max_items"`
	RecencyWindow time.Duration `yaml:"recency_window"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// TripConfig describes trip day-count settings.
type TripConfig struct {
	// Timezone is the business timezone calendar days are computed in.
	Timezone string `yaml:"timezone"`
}

// AuthorityConfig describes approval-authority settings.
type AuthorityConfig struct {
	Cache AuthorityCacheConfig `yaml:"cache"`
}

// AuthorityCacheConfig describes the eligible-confirmer cache.
type AuthorityCacheConfig struct {
	Driver  string        `yaml:"driver"`
	AddrEnv string        `yaml:"addr_env"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

// OrgdirConfig describes where the org-hierarchy snapshot lives.
type OrgdirConfig struct {
	SnapshotFile string `yaml:"snapshot_file"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Records: RecordsConfig{
			Driver:        "memory",
			PageSize:      50,
			MaxPages:      20,
			MaxItems:      1000,
			RecencyWindow: 60 * time.Second,
			RetryDelay:    3 * time.Second,
		},
		Trip: TripConfig{
			Timezone: "Asia/Tokyo",
		},
		Authority: AuthorityConfig{
			Cache: AuthorityCacheConfig{
				Driver: "memory",
				TTL:    5 * time.Minute,
			},
		},
		Orgdir: OrgdirConfig{
			SnapshotFile: "/etc/tenko/org.yaml",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	switch c.Records.Driver {
	case "memory":
	case "postgres":
		if c.Records.DSNEnv == "" {
			errs = append(errs, "records.dsn_env is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("records.driver must be memory or postgres, got %q", c.Records.Driver))
	}
	if c.Trip.Timezone == "" {
		errs = append(errs, "trip.timezone is required")
	} else if _, err := time.LoadLocation(c.Trip.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("trip.timezone: %v", err))
	}
	switch c.Authority.Cache.Driver {
	case "memory":
	case "redis":
		if c.Authority.Cache.AddrEnv == "" {
			errs = append(errs, "authority.cache.addr_env is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("authority.cache.driver must be memory or redis, got %q", c.Authority.Cache.Driver))
	}
	if c.Orgdir.SnapshotFile == "" {
		errs = append(errs, "orgdir.snapshot_file is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads TENKO_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TENKO_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TENKO_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("TENKO_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("TENKO_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("TENKO_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TENKO_RECORDS_DRIVER"); v != "" {
		cfg.Records.Driver = v
	}
	if v := os.Getenv("TENKO_TRIP_TIMEZONE"); v != "" {
		cfg.Trip.Timezone = v
	}
	if v := os.Getenv("TENKO_ORGDIR_SNAPSHOT_FILE"); v != "" {
		cfg.Orgdir.SnapshotFile = v
	}
}
