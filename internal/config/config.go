// Package config loads and validates service configuration via Viper.
//
// Grounded on the teacher's internal/config/config.go: one struct per
// concern, INDEXER_-prefixed environment overrides, SetDefault calls mirrored
// one-for-one against spec.md §6's defaults, and a Validate method on the
// root Config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures every service configuration knob.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	DB       DBConfig       `mapstructure:"db"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sites    []SiteConfig   `mapstructure:"sites"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines the optional API-key gate on the control surface.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// IndexingConfig governs the Crawl Scheduler and Lemma/Index Writer (spec.md
// §6 "indexing-settings").
type IndexingConfig struct {
	Parallelism   int    `mapstructure:"parallelism"`
	BatchSize     int    `mapstructure:"batch_size"`
	RespectRobots bool   `mapstructure:"respect_robots"`
	UserAgent     string `mapstructure:"user_agent"`

	// PoolTerminationTimeoutSeconds bounds how long the Coordinator awaits
	// the per-run worker pool before forcibly cancelling remaining work and
	// recording POOL_TERMINATION_FORCED (spec.md §4.9/§5). The source's
	// ForkJoinPool.awaitTermination uses Long.MAX_VALUE nanoseconds — an
	// effectively unbounded wait with a shutdownNow() fallback that can
	// only fire on interrupt; this is that fallback's Go equivalent made
	// configurable rather than unreachable.
	PoolTerminationTimeoutSeconds int `mapstructure:"pool_termination_timeout_seconds"`
}

// DBConfig controls access to the relational Page Store.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CacheConfig sizes the Lemma Cache and PageUrlCache (spec.md §6).
type CacheConfig struct {
	LemmaCacheMax              int `mapstructure:"lemma_cache_max"`
	LemmaCacheIdleTTLSeconds   int `mapstructure:"lemma_cache_idle_ttl_seconds"`
	PageURLCacheMax            int `mapstructure:"page_url_cache_max"`
	PageURLCacheIdleTTLSeconds int `mapstructure:"page_url_cache_idle_ttl_seconds"`
}

// SiteConfig names one seed site to crawl (spec.md §6 "sites").
type SiteConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// Load builds a Config from an optional file plus INDEXER_-prefixed
// environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
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
	v.SetDefault("logging.development", false)
	v.SetDefault("indexing.parallelism", 8)
	v.SetDefault("indexing.batch_size", 5000)
	v.SetDefault("indexing.respect_robots", true)
	v.SetDefault("indexing.user_agent", "indexer-bot/1.0")
	v.SetDefault("indexing.pool_termination_timeout_seconds", 300)
	v.SetDefault("cache.lemma_cache_max", 10000)
	v.SetDefault("cache.lemma_cache_idle_ttl_seconds", 600)
	v.SetDefault("cache.page_url_cache_max", 600)
	v.SetDefault("cache.page_url_cache_idle_ttl_seconds", 600)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Indexing.Parallelism <= 0 {
		return fmt.Errorf("indexing.parallelism must be > 0")
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be > 0")
	}
	if c.Indexing.PoolTerminationTimeoutSeconds <= 0 {
		return fmt.Errorf("indexing.pool_termination_timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	for i, s := range c.Sites {
		if s.URL == "" {
			return fmt.Errorf("sites[%d].url must be set", i)
		}
	}
	return nil
}
