// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pagesnap/pagesnap/internal/snapshot"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// CacheConfig governs how long cached screenshots stay servable.
type CacheConfig struct {
	TTLDays int `mapstructure:"ttl_days"`
}

// RendererConfig configures the headless browser pool.
type RendererConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SettleMs       int    `mapstructure:"settle_ms"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	UserAgent      string `mapstructure:"user_agent"`
	MinWidth       int    `mapstructure:"min_width"`
	MaxWidth       int    `mapstructure:"max_width"`
	MinHeight      int    `mapstructure:"min_height"`
	MaxHeight      int    `mapstructure:"max_height"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// SweeperConfig controls the background expiry sweep.
type SweeperConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
}

// PublisherConfig configures capture-completed event publishing.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. An empty path means
// defaults plus PAGESNAP_* environment overrides only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGESNAP")
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
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("cache.ttl_days", 7)
	v.SetDefault("renderer.timeout_seconds", 30)
	v.SetDefault("renderer.settle_ms", 2000)
	v.SetDefault("renderer.max_parallel", 4)
	v.SetDefault("renderer.user_agent", "")
	v.SetDefault("renderer.min_width", snapshot.DefaultLimits.MinWidth)
	v.SetDefault("renderer.max_width", snapshot.DefaultLimits.MaxWidth)
	v.SetDefault("renderer.min_height", snapshot.DefaultLimits.MinHeight)
	v.SetDefault("renderer.max_height", snapshot.DefaultLimits.MaxHeight)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "screenshots")
	v.SetDefault("database.provider", "memory")
	v.SetDefault("database.table", "snapshots")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("sweeper.interval_hours", 24)
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Cache.TTLDays <= 0 {
		return fmt.Errorf("cache.ttl_days must be > 0")
	}
	if c.Renderer.TimeoutSeconds <= 0 {
		return fmt.Errorf("renderer.timeout_seconds must be > 0")
	}
	if c.Renderer.MaxParallel <= 0 {
		return fmt.Errorf("renderer.max_parallel must be > 0")
	}
	if c.Renderer.MinWidth <= 0 || c.Renderer.MaxWidth < c.Renderer.MinWidth {
		return fmt.Errorf("renderer width limits are inconsistent")
	}
	if c.Renderer.MinHeight <= 0 || c.Renderer.MaxHeight < c.Renderer.MinHeight {
		return fmt.Errorf("renderer height limits are inconsistent")
	}
	switch c.Storage.Provider {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when storage.provider is local")
		}
	default:
		return fmt.Errorf("storage.provider must be gcs, local, or memory, got %q", c.Storage.Provider)
	}
	switch c.Database.Provider {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when database.provider is postgres")
		}
	default:
		return fmt.Errorf("database.provider must be postgres or memory, got %q", c.Database.Provider)
	}
	switch c.Publisher.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("publisher.provider must be pubsub, memory, or none, got %q", c.Publisher.Provider)
	}
	if c.Sweeper.IntervalHours <= 0 {
		return fmt.Errorf("sweeper.interval_hours must be > 0")
	}
	return nil
}

// FreshnessWindow converts the cache TTL into a duration.
func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Cache.TTLDays) * 24 * time.Hour
}

// RenderTimeout converts the renderer timeout into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Renderer.TimeoutSeconds) * time.Second
}

// SettleDelay converts the post-load settle delay into a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Renderer.SettleMs) * time.Millisecond
}

// SweepInterval converts the sweeper interval into a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.IntervalHours) * time.Hour
}

// RequestTimeout converts the HTTP request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// Limits builds the viewport bounds from renderer config.
func (c Config) Limits() snapshot.Limits {
	return snapshot.Limits{
		MinWidth:  c.Renderer.MinWidth,
		MaxWidth:  c.Renderer.MaxWidth,
		MinHeight: c.Renderer.MinHeight,
		MaxHeight: c.Renderer.MaxHeight,
	}
}
