package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.PageSize != 40 {
		t.Fatalf("expected default page size 40, got %d", cfg.Scraper.PageSize)
	}
	if cfg.Scraper.RequestsPerMinute != 20 {
		t.Fatalf("expected default rpm 20, got %d", cfg.Scraper.RequestsPerMinute)
	}
	if cfg.Worker.PersistFailurePolicy != "continue" {
		t.Fatalf("expected default persist policy continue, got %q", cfg.Worker.PersistFailurePolicy)
	}
	if cfg.Scraper.NavTimeoutSec >= cfg.Scraper.PageTimeoutSec {
		t.Fatalf("expected navigation timeout (%ds) below page timeout (%ds)",
			cfg.Scraper.NavTimeoutSec, cfg.Scraper.PageTimeoutSec)
	}
	if got := cfg.RobotsTTL(); got != time.Hour {
		t.Fatalf("expected robots ttl 1h, got %v", got)
	}
	if got := cfg.CacheTTL(); got != 30*time.Minute {
		t.Fatalf("expected cache ttl 30m, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
db:
  dsn: postgres://localhost/bookshop
pubsub:
  project_id: test-project
  topic_name: scrape-jobs
  subscription: scrape-jobs-sub
archive:
  gcs_bucket: snapshots-bucket
scraper:
  base_url: https://shop.example.com
  user_agent: shop-agent
  max_pages: 5
  requests_per_minute: 30
  delay_min_ms: 100
  delay_max_ms: 200
  selectors:
    product_card:
      - div.card
      - li.product
    pagination:
      - nav.pages
retry:
  max_attempts: 5
  jitter: 0.5
worker:
  concurrency: 4
  persist_failure_policy: abort
headless:
  enabled: true
  max_parallel: 3
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.BaseURL != "https://shop.example.com" || cfg.Scraper.MaxPages != 5 {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if !reflect.DeepEqual(cfg.Scraper.Selectors.ProductCard, []string{"div.card", "li.product"}) {
		t.Fatalf("expected product card selectors override, got %v", cfg.Scraper.Selectors.ProductCard)
	}
	if !reflect.DeepEqual(cfg.Scraper.Selectors.Pagination, []string{"nav.pages"}) {
		t.Fatalf("expected pagination selectors override, got %v", cfg.Scraper.Selectors.Pagination)
	}
	if len(cfg.Scraper.Selectors.ProductTitle) != 0 {
		t.Fatalf("expected unset selector chains to stay empty, got %v", cfg.Scraper.Selectors.ProductTitle)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Jitter != 0.5 {
		t.Fatalf("expected retry overrides to apply: %+v", cfg.Retry)
	}
	if cfg.Worker.Concurrency != 4 || cfg.Worker.PersistFailurePolicy != "abort" {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Worker)
	}
	if cfg.PubSub.ProjectID != "test-project" || cfg.PubSub.Subscription != "scrape-jobs-sub" {
		t.Fatalf("expected pubsub overrides to apply: %+v", cfg.PubSub)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development false")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Scraper: ScraperConfig{
			BaseURL:           "https://shop.example.com",
			UserAgent:         "agent",
			PageSize:          40,
			RequestsPerMinute: 20,
			DelayMinMs:        100,
			DelayMaxMs:        200,
		},
		Retry:  RetryConfig{MaxAttempts: 3, Jitter: 0.2},
		Worker: WorkerConfig{Concurrency: 2, PersistFailurePolicy: "continue"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing base url",
			cfg: func() Config {
				c := base
				c.Scraper.BaseURL = ""
				return c
			}(),
			want: "scraper.base_url",
		},
		{
			name: "invalid rpm",
			cfg: func() Config {
				c := base
				c.Scraper.RequestsPerMinute = 0
				return c
			}(),
			want: "scraper.requests_per_minute",
		},
		{
			name: "delay min above max",
			cfg: func() Config {
				c := base
				c.Scraper.DelayMinMs = 500
				c.Scraper.DelayMaxMs = 100
				return c
			}(),
			want: "scraper.delay_min_ms",
		},
		{
			name: "invalid jitter",
			cfg: func() Config {
				c := base
				c.Retry.Jitter = 1.5
				return c
			}(),
			want: "retry.jitter",
		},
		{
			name: "invalid persist policy",
			cfg: func() Config {
				c := base
				c.Worker.PersistFailurePolicy = "retry"
				return c
			}(),
			want: "worker.persist_failure_policy",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
		},
		{
			name: "pubsub missing subscription",
			cfg: func() Config {
				c := base
				c.PubSub.ProjectID = "p"
				c.PubSub.TopicName = "t"
				return c
			}(),
			want: "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
