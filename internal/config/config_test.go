package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  workers: 3
  concurrency: 6
  user_agent: real-agent
  respect_robots: false
  max_depth_default: 4
  max_pages_default: 40
  max_pages_limit: 100
  queue_depth: 128
  job_timeout: 45s
http:
  timeout_seconds: 20
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
  max_redirects: 5
headless:
  enabled: true
  max_parallel: 2
analyzer:
  content:
    base: 40
registry:
  backend: sqlite
  sqlite:
    path: /tmp/jobs.db
storage:
  backend: local
  base_dir: /tmp/pages
logging:
  development: false
standard_crawls:
  docs-audit:
    root_url: https://example.com/docs
    max_pages: 25
    options:
      allow_subdomains: true
      exclude_patterns: ["/admin/*"]
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
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.RespectRobots {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.HTTP.MaxRedirects != 5 {
		t.Fatalf("expected max_redirects 5, got %d", cfg.HTTP.MaxRedirects)
	}
	if cfg.Analyzer.Content.Base != 40 {
		t.Fatalf("expected content base override, got %d", cfg.Analyzer.Content.Base)
	}
	if cfg.Analyzer.Content.Words1000 != 15 {
		t.Fatalf("expected untouched weight default, got %d", cfg.Analyzer.Content.Words1000)
	}
	if cfg.Registry.Backend != "sqlite" || cfg.Registry.SQLite.Path != "/tmp/jobs.db" {
		t.Fatalf("expected sqlite registry: %+v", cfg.Registry)
	}
	crawl, ok := cfg.StandardCrawls["docs-audit"]
	if !ok || crawl.RootURL != "https://example.com/docs" || crawl.MaxPages != 25 {
		t.Fatalf("expected standard crawl to be loaded: %+v", cfg.StandardCrawls)
	}
	if !crawl.Options.AllowSubdomains || len(crawl.Options.ExcludePatterns) != 1 {
		t.Fatalf("expected crawl options to be preserved: %+v", crawl.Options)
	}
	if got := cfg.JobBudget(); got != 45*time.Second {
		t.Fatalf("expected job budget 45s, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected fetch timeout 20s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 5 || cfg.Crawler.MaxPagesDefault != 50 || cfg.Crawler.MaxDepthDefault != 5 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.HTTP.TimeoutSeconds != 30 || cfg.HTTP.MaxRetries != 2 || cfg.HTTP.MaxRedirects != 10 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.JobBudget() != 10*time.Minute {
		t.Fatalf("expected 10m job budget, got %v", cfg.JobBudget())
	}
	if cfg.Registry.Backend != "memory" || cfg.Storage.Backend != "memory" {
		t.Fatalf("expected in-memory backends by default")
	}
	if cfg.Tools.BulkConcurrency != 10 || cfg.Tools.URLTimeoutSeconds != 10 {
		t.Fatalf("unexpected tools defaults: %+v", cfg.Tools)
	}
}

func TestApplyCrawlDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Crawler: CrawlerConfig{
		MaxPagesDefault: 50,
		MaxPagesLimit:   200,
		MaxDepthDefault: 5,
		DefaultRender:   string(crawler.RenderAuto),
	}}

	got := cfg.ApplyCrawlDefaults(crawler.CrawlParams{RootURL: "https://example.com"})
	if got.MaxPages != 50 || got.MaxDepth != 5 || got.Options.Render != crawler.RenderAuto {
		t.Fatalf("expected defaults applied, got %+v", got)
	}
	got = cfg.ApplyCrawlDefaults(crawler.CrawlParams{MaxPages: 1000, MaxDepth: 2, Options: crawler.CrawlOptions{Render: crawler.RenderNever}})
	if got.MaxPages != 200 || got.MaxDepth != 2 || got.Options.Render != crawler.RenderNever {
		t.Fatalf("expected clamp and explicit values kept, got %+v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Workers: 1, Concurrency: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "port",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
			wantErr: "server.port",
		},
		{
			name: "workers",
			mutate: func(c *Config) {
				c.Crawler.Workers = 0
			},
			wantErr: "crawler.workers",
		},
		{
			name: "concurrency",
			mutate: func(c *Config) {
				c.Crawler.Concurrency = 0
			},
			wantErr: "crawler.concurrency",
		},
		{
			name: "page limit",
			mutate: func(c *Config) {
				c.Crawler.MaxPagesDefault = 10
				c.Crawler.MaxPagesLimit = 5
			},
			wantErr: "crawler.max_pages_default",
		},
		{
			name: "bulk concurrency",
			mutate: func(c *Config) {
				c.Tools.BulkConcurrency = -1
			},
			wantErr: "tools.bulk_concurrency",
		},
		{
			name: "render mode",
			mutate: func(c *Config) {
				c.Crawler.DefaultRender = "sometimes"
			},
			wantErr: "crawler.default_render",
		},
		{
			name: "http timeout",
			mutate: func(c *Config) {
				c.HTTP.TimeoutSeconds = 0
			},
			wantErr: "http.timeout_seconds",
		},
		{
			name: "headless parallel",
			mutate: func(c *Config) {
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
			},
			wantErr: "headless.max_parallel",
		},
		{
			name: "auth key",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.APIKey = ""
			},
			wantErr: "auth.api_key",
		},
		{
			name: "registry backend",
			mutate: func(c *Config) {
				c.Registry.Backend = "etcd"
			},
			wantErr: "registry.backend",
		},
		{
			name: "gcs bucket",
			mutate: func(c *Config) {
				c.Storage.Backend = "gcs"
			},
			wantErr: "storage.bucket",
		},
		{
			name: "keyword file",
			mutate: func(c *Config) {
				c.Keywords.Source = "static"
			},
			wantErr: "keywords.file",
		},
		{
			name: "telemetry exporter",
			mutate: func(c *Config) {
				c.Telemetry.Exporter = "jaeger"
			},
			wantErr: "telemetry.exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
