// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds topic and subscription metadata for job distribution.
// An empty ProjectID selects the in-memory queue.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	TopicName    string `mapstructure:"topic_name"`
	Subscription string `mapstructure:"subscription"`
}

// ArchiveConfig sets the bucket for raw page snapshots. An empty bucket
// selects the in-memory archive.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ScraperConfig governs politeness and extraction behavior.
type ScraperConfig struct {
	BaseURL           string          `mapstructure:"base_url"`
	UserAgent         string          `mapstructure:"user_agent"`
	MaxPages          int             `mapstructure:"max_pages"`
	PageSize          int             `mapstructure:"page_size"`
	WaitSelector      string          `mapstructure:"wait_selector"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute"`
	DelayMinMs        int             `mapstructure:"delay_min_ms"`
	DelayMaxMs        int             `mapstructure:"delay_max_ms"`
	RobotsTTLMinutes  int             `mapstructure:"robots_ttl_minutes"`
	NavTimeoutSec     int             `mapstructure:"nav_timeout_seconds"`
	PageTimeoutSec    int             `mapstructure:"page_timeout_seconds"`
	DetailTimeoutSec  int             `mapstructure:"detail_timeout_seconds"`
	Selectors         SelectorsConfig `mapstructure:"selectors"`
}

// SelectorsConfig carries the ordered CSS fallback chains per extracted
// field, so markup drift on the target site is fixable without a rebuild.
// An empty list keeps the built-in chain for that field.
type SelectorsConfig struct {
	ProductCard          []string `mapstructure:"product_card"`
	ProductTitle         []string `mapstructure:"product_title"`
	ProductAuthor        []string `mapstructure:"product_author"`
	ProductPrice         []string `mapstructure:"product_price"`
	ProductOriginalPrice []string `mapstructure:"product_original_price"`
	ProductImage         []string `mapstructure:"product_image"`
	ProductLink          []string `mapstructure:"product_link"`
	LazyImageAttrs       []string `mapstructure:"lazy_image_attrs"`
	NavigationItem       []string `mapstructure:"navigation_item"`
	NavigationChildren   []string `mapstructure:"navigation_children"`
	DetailDescription    []string `mapstructure:"detail_description"`
	DetailSpecRows       []string `mapstructure:"detail_spec_rows"`
	DetailImage          []string `mapstructure:"detail_image"`
	DetailReviews        []string `mapstructure:"detail_reviews"`
	DetailRelated        []string `mapstructure:"detail_related"`
	Pagination           []string `mapstructure:"pagination"`
}

// RetryConfig configures transient-failure retry behavior.
type RetryConfig struct {
	MaxAttempts      int     `mapstructure:"max_attempts"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	Jitter           float64 `mapstructure:"jitter"`
}

// CacheConfig sizes the in-process progress cache.
type CacheConfig struct {
	Size       int `mapstructure:"size"`
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

// WorkerConfig governs job worker behavior.
type WorkerConfig struct {
	Concurrency          int    `mapstructure:"concurrency"`
	QueueDepth           int    `mapstructure:"queue_depth"`
	PersistFailurePolicy string `mapstructure:"persist_failure_policy"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	MaxParallel      int      `mapstructure:"max_parallel"`
	BlockedResources []string `mapstructure:"blocked_resources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("scraper.base_url", "https://books.toscrape.com")
	v.SetDefault("scraper.user_agent", "bookstore-scraper/0.1")
	v.SetDefault("scraper.max_pages", 0)
	v.SetDefault("scraper.page_size", 40)
	v.SetDefault("scraper.wait_selector", "")
	v.SetDefault("scraper.requests_per_minute", 20)
	v.SetDefault("scraper.delay_min_ms", 500)
	v.SetDefault("scraper.delay_max_ms", 1500)
	v.SetDefault("scraper.robots_ttl_minutes", 60)
	v.SetDefault("scraper.nav_timeout_seconds", 15)
	v.SetDefault("scraper.page_timeout_seconds", 30)
	v.SetDefault("scraper.detail_timeout_seconds", 20)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 500)
	v.SetDefault("retry.backoff_max_ms", 8000)
	v.SetDefault("retry.jitter", 0.2)
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.persist_failure_policy", "continue")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.blocked_resources", []string{"*.png", "*.jpg", "*.gif", "*.woff", "*.woff2", "*.css"})
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url must be set")
	}
	if c.Scraper.UserAgent == "" {
		return fmt.Errorf("scraper.user_agent must be set")
	}
	if c.Scraper.PageSize <= 0 {
		return fmt.Errorf("scraper.page_size must be > 0")
	}
	if c.Scraper.RequestsPerMinute <= 0 {
		return fmt.Errorf("scraper.requests_per_minute must be > 0")
	}
	if c.Scraper.DelayMinMs > c.Scraper.DelayMaxMs {
		return fmt.Errorf("scraper.delay_min_ms must be <= scraper.delay_max_ms")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be in [0,1]")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	switch c.Worker.PersistFailurePolicy {
	case "continue", "abort":
	default:
		return fmt.Errorf("worker.persist_failure_policy must be continue or abort")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.ProjectID != "" && (c.PubSub.TopicName == "" || c.PubSub.Subscription == "") {
		return fmt.Errorf("pubsub.topic_name and pubsub.subscription must be set when pubsub.project_id is set")
	}
	return nil
}

// RobotsTTL returns the robots cache lifetime as a duration.
func (c Config) RobotsTTL() time.Duration {
	return time.Duration(c.Scraper.RobotsTTLMinutes) * time.Minute
}

// CacheTTL returns the progress cache lifetime as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
