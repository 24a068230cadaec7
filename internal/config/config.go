// Package config loads and validates release tracker configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	localstorage "github.com/JakeFAU/release-tracker/internal/storage/local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Application ApplicationConfig `mapstructure:"application"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Notifier    NotifierConfig    `mapstructure:"notifier"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ApplicationConfig describes the running service for telemetry resources.
type ApplicationConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
}

// HTTPConfig configures the upstream HTTP client.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// Timeout returns the per-fetch budget.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// RateLimitConfig controls per-host upstream pacing.
type RateLimitConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	DefaultRPS   float64 `mapstructure:"default_rps"`
	DefaultBurst int     `mapstructure:"default_burst"`
}

// SourcesConfig groups the upstream endpoints.
type SourcesConfig struct {
	Chromium ChromiumSourceConfig `mapstructure:"chromium"`
	Releases ReleasesSourceConfig `mapstructure:"releases"`
}

// ChromiumSourceConfig points at the milestone schedule endpoint.
type ChromiumSourceConfig struct {
	URL          string `mapstructure:"url"`
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// ReleasesSourceConfig points at the Electron release listing.
type ReleasesSourceConfig struct {
	URL      string `mapstructure:"url"`
	Token    string `mapstructure:"token"`
	PerPage  int    `mapstructure:"per_page"`
	MaxPages int    `mapstructure:"max_pages"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN                   string        `mapstructure:"dsn"`
	MaxConns              int32         `mapstructure:"max_conns"`
	MinConns              int32         `mapstructure:"min_conns"`
	MaxConnLifetime       time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeoutSeconds int           `mapstructure:"connect_timeout_seconds"`
	Migrate               bool          `mapstructure:"migrate"`
}

// StorageConfig selects where raw upstream snapshots are kept.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   localstorage.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for refresh event publication.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NotifierConfig bounds webhook fan-out.
type NotifierConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RefreshConfig drives the background scheduler.
type RefreshConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	IntervalHours int  `mapstructure:"interval_hours"`
	OnStartup     bool `mapstructure:"on_startup"`
	Concurrency   int  `mapstructure:"concurrency"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("application.service_name", "release-tracker")
	v.SetDefault("application.version", "dev")
	v.SetDefault("http.user_agent", "release-tracker/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.default_burst", 2)
	v.SetDefault("sources.chromium.url", "https://chromiumdash.appspot.com/fetch_milestone_schedule")
	v.SetDefault("sources.chromium.snapshot_path", "chromium/schedule.json")
	v.SetDefault("sources.releases.url", "https://api.github.com/repos/electron/electron/releases")
	v.SetDefault("sources.releases.per_page", 10)
	v.SetDefault("sources.releases.max_pages", 1)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout_seconds", 5)
	v.SetDefault("database.migrate", true)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("notifier.concurrency", 4)
	v.SetDefault("notifier.timeout_seconds", 10)
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval_hours", 24)
	v.SetDefault("refresh.on_startup", false)
	v.SetDefault("refresh.concurrency", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := validateURL("sources.chromium.url", c.Sources.Chromium.URL); err != nil {
		return err
	}
	if err := validateURL("sources.releases.url", c.Sources.Releases.URL); err != nil {
		return err
	}
	if c.Sources.Releases.PerPage <= 0 || c.Sources.Releases.PerPage > 100 {
		return fmt.Errorf("sources.releases.per_page must be between 1 and 100")
	}
	if c.Sources.Releases.MaxPages <= 0 {
		return fmt.Errorf("sources.releases.max_pages must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "":
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Notifier.Concurrency <= 0 {
		return fmt.Errorf("notifier.concurrency must be > 0")
	}
	if c.Notifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("notifier.timeout_seconds must be > 0")
	}
	if c.Refresh.IntervalHours <= 0 {
		return fmt.Errorf("refresh.interval_hours must be > 0")
	}
	if c.Refresh.Concurrency <= 0 {
		return fmt.Errorf("refresh.concurrency must be > 0")
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
