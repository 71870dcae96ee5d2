// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted for the pluggable backends.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderGCS      = "gcs"
	ProviderPubSub   = "pubsub"
	ProviderNoop     = "noop"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Maintain MaintainConfig `mapstructure:"maintenance"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs dispatcher and crawl pipeline behavior.
type CrawlerConfig struct {
	Workers              int    `mapstructure:"workers"`
	QueueDepth           int    `mapstructure:"queue_depth"`
	BatchSize            int    `mapstructure:"batch_size"`
	DispatchSeconds      int    `mapstructure:"dispatch_seconds"`
	StoreProvider        string `mapstructure:"store_provider"`
	JobTimeoutSeconds    int    `mapstructure:"job_timeout_seconds"`
	SourceTimeoutSeconds int    `mapstructure:"source_timeout_seconds"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerDomainRPS   float64 `mapstructure:"per_domain_rps"`
	Burst          int     `mapstructure:"burst"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// ArchiveConfig sets the raw HTML archive destination.
type ArchiveConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MaintainConfig controls cleanup and stuck-job recovery defaults.
type MaintainConfig struct {
	DaysToKeep        int `mapstructure:"days_to_keep"`
	StuckAfterMinutes int `mapstructure:"stuck_after_minutes"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.batch_size", 10)
	v.SetDefault("crawler.dispatch_seconds", 10)
	v.SetDefault("crawler.store_provider", ProviderMemory)
	v.SetDefault("crawler.job_timeout_seconds", 300)
	v.SetDefault("crawler.source_timeout_seconds", 600)
	v.SetDefault("fetch.user_agent", "newscrawler-bot/1.0 (+https://github.com/verifysource/newscrawler)")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.per_domain_rps", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("archive.provider", ProviderNoop)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.provider", ProviderNoop)
	v.SetDefault("pubsub.topic", "article.created")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("maintenance.days_to_keep", 7)
	v.SetDefault("maintenance.stuck_after_minutes", 60)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	switch c.Crawler.StoreProvider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when crawler.store_provider is postgres")
		}
	default:
		return fmt.Errorf("crawler.store_provider must be %q or %q", ProviderMemory, ProviderPostgres)
	}
	switch c.Archive.Provider {
	case ProviderNoop, ProviderMemory:
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("archive.provider must be %q, %q, or %q", ProviderNoop, ProviderMemory, ProviderGCS)
	}
	switch c.PubSub.Provider {
	case ProviderNoop, ProviderMemory:
	case ProviderPubSub:
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub.provider is pubsub")
		}
	default:
		return fmt.Errorf("pubsub.provider must be %q, %q, or %q", ProviderNoop, ProviderMemory, ProviderPubSub)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the fetcher timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// DispatchInterval returns the dispatcher cadence as a duration.
func (c Config) DispatchInterval() time.Duration {
	return time.Duration(c.Crawler.DispatchSeconds) * time.Second
}

// ServerTimeout returns the per-request HTTP timeout as a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// StuckAfter returns the running-job staleness threshold as a duration.
func (c Config) StuckAfter() time.Duration {
	return time.Duration(c.Maintain.StuckAfterMinutes) * time.Minute
}
