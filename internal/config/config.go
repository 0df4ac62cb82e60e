// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server         ServerConfig                   `mapstructure:"server"`
	Auth           AuthConfig                     `mapstructure:"auth"`
	Crawler        CrawlerConfig                  `mapstructure:"crawler"`
	HTTP           HTTPConfig                     `mapstructure:"http"`
	Headless       HeadlessConfig                 `mapstructure:"headless"`
	Analyzer       AnalyzerConfig                 `mapstructure:"analyzer"`
	Tools          ToolsConfig                    `mapstructure:"tools"`
	Registry       RegistryConfig                 `mapstructure:"registry"`
	Storage        StorageConfig                  `mapstructure:"storage"`
	DB             DBConfig                       `mapstructure:"db"`
	PubSub         PubSubConfig                   `mapstructure:"pubsub"`
	Kafka          KafkaConfig                    `mapstructure:"kafka"`
	Neo4j          Neo4jConfig                    `mapstructure:"neo4j"`
	Progress       ProgressConfig                 `mapstructure:"progress"`
	Keywords       KeywordsConfig                 `mapstructure:"keywords"`
	Performance    PerformanceConfig              `mapstructure:"performance"`
	Logging        LoggingConfig                  `mapstructure:"logging"`
	Telemetry      TelemetryConfig                `mapstructure:"telemetry"`
	StandardCrawls map[string]crawler.CrawlParams `mapstructure:"standard_crawls"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxWait         time.Duration `mapstructure:"max_wait"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs job execution and crawl defaults.
type CrawlerConfig struct {
	Workers          int           `mapstructure:"workers"`
	Concurrency      int           `mapstructure:"concurrency"`
	UserAgent        string        `mapstructure:"user_agent"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	AllowSubdomains  bool          `mapstructure:"allow_subdomains"`
	MaxDepthDefault  int           `mapstructure:"max_depth_default"`
	MaxPagesDefault  int           `mapstructure:"max_pages_default"`
	MaxPagesLimit    int           `mapstructure:"max_pages_limit"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	DomainRPS        float64       `mapstructure:"domain_rps"`
	DomainBurst      int           `mapstructure:"domain_burst"`
	MaxBodyBytes     int           `mapstructure:"max_body_bytes"`
	ArchiveHTML      bool          `mapstructure:"archive_html"`
	ResultTopic      string        `mapstructure:"result_topic"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	IncludeSitemap   bool          `mapstructure:"include_sitemap"`
	DefaultRender    string        `mapstructure:"default_render"`
	KeepPartialOnErr bool          `mapstructure:"keep_partial_on_error"`
}

// HTTPConfig configures the fetcher's timeouts, retries and redirects.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxRedirects     int `mapstructure:"max_redirects"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
	SettleMs        int  `mapstructure:"settle_ms"`
	ViewportWidth   int  `mapstructure:"viewport_width"`
	ViewportHeight  int  `mapstructure:"viewport_height"`
	Mobile          bool `mapstructure:"mobile"`
}

// AnalyzerConfig tunes analyzer thresholds and score weights.
type AnalyzerConfig struct {
	Content analyzer.ContentWeights `mapstructure:"content"`
}

// ToolsConfig tunes the content optimizer and bulk URL checker.
type ToolsConfig struct {
	BulkConcurrency   int `mapstructure:"bulk_concurrency"`
	URLTimeoutSeconds int `mapstructure:"url_timeout_seconds"`
}

// RegistryConfig selects the job registry backend.
type RegistryConfig struct {
	Backend string               `mapstructure:"backend"`
	Redis   RedisRegistryConfig  `mapstructure:"redis"`
	SQLite  SQLiteRegistryConfig `mapstructure:"sqlite"`
}

// RedisRegistryConfig configures the redis-backed registry.
type RedisRegistryConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SQLiteRegistryConfig configures the sqlite-backed registry.
type SQLiteRegistryConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig sets the archive backend for rendered HTML.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Bucket      string `mapstructure:"bucket"`
	BaseDir     string `mapstructure:"base_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the postgres page store.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	PagesTable      string        `mapstructure:"pages_table"`
	IssuesTable     string        `mapstructure:"issues_table"`
	ProgressTable   string        `mapstructure:"progress_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for Pub/Sub completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// KafkaConfig holds metadata for Kafka completion notifications.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Neo4jConfig enables exporting link graphs to Neo4j.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ProgressConfig configures the progress hub.
type ProgressConfig struct {
	Enabled       bool        `mapstructure:"enabled"`
	LogEnabled    bool        `mapstructure:"log_enabled"`
	BufferSize    int         `mapstructure:"buffer_size"`
	Batch         BatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int         `mapstructure:"sink_timeout_ms"`
}

// BatchConfig bounds progress batches.
type BatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// KeywordsConfig selects the keyword ranking supplier.
type KeywordsConfig struct {
	Source         string `mapstructure:"source"`
	File           string `mapstructure:"file"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxKeywords    int    `mapstructure:"max_keywords"`
}

// PerformanceConfig configures the Core Web Vitals scorer.
type PerformanceConfig struct {
	Provider       string `mapstructure:"provider"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	Strategy       string `mapstructure:"strategy"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing of jobs.
type TelemetryConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
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
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.max_wait", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.user_agent", "seo-site-crawler/1.0 (+https://github.com/JakeFAU/seo-site-crawler)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.allow_subdomains", false)
	v.SetDefault("crawler.max_depth_default", 5)
	v.SetDefault("crawler.max_pages_default", 50)
	v.SetDefault("crawler.max_pages_limit", 5000)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.job_timeout", "10m")
	v.SetDefault("crawler.domain_rps", 4.0)
	v.SetDefault("crawler.domain_burst", 2)
	v.SetDefault("crawler.max_body_bytes", 5*1024*1024)
	v.SetDefault("crawler.archive_html", false)
	v.SetDefault("crawler.result_topic", "crawl-results")
	v.SetDefault("crawler.poll_interval", "250ms")
	v.SetDefault("crawler.include_sitemap", true)
	v.SetDefault("crawler.default_render", string(crawler.RenderAuto))
	v.SetDefault("crawler.keep_partial_on_error", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("headless.viewport_width", 412)
	v.SetDefault("headless.viewport_height", 915)
	v.SetDefault("headless.mobile", true)
	setContentWeightDefaults(v, analyzer.DefaultContentWeights())
	v.SetDefault("tools.bulk_concurrency", 10)
	v.SetDefault("tools.url_timeout_seconds", 10)
	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.redis.addr", "localhost:6379")
	v.SetDefault("registry.redis.prefix", "seo:")
	v.SetDefault("registry.redis.ttl", "168h")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.pages_table", "crawl_pages")
	v.SetDefault("db.issues_table", "crawl_issues")
	v.SetDefault("db.progress_table", "crawl_progress")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch.max_events", 100)
	v.SetDefault("progress.batch.max_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("keywords.source", "simulated")
	v.SetDefault("keywords.timeout_seconds", 15)
	v.SetDefault("keywords.max_keywords", 500)
	v.SetDefault("performance.provider", "none")
	v.SetDefault("performance.endpoint", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed")
	v.SetDefault("performance.strategy", "mobile")
	v.SetDefault("performance.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "seo-site-crawler")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

func setContentWeightDefaults(v *viper.Viper, w analyzer.ContentWeights) {
	defaults := map[string]int{
		"base":                w.Base,
		"words_1000":          w.Words1000,
		"words_500":           w.Words500,
		"words_300":           w.Words300,
		"title_ideal":         w.TitleIdeal,
		"title_present":       w.TitlePresent,
		"meta_ideal":          w.MetaIdeal,
		"h1":                  w.H1,
		"readability_good":    w.ReadabilityGood,
		"readability_fair":    w.ReadabilityFair,
		"alt_text":            w.AltText,
		"internal_links_many": w.InternalLinksMany,
		"internal_links_some": w.InternalLinksSome,
		"keyword_each":        w.KeywordEach,
		"keyword_max":         w.KeywordMax,
		"stuffed_keyword":     w.StuffedKeyword,
		"thin_content":        w.ThinContent,
		"stuffing":            w.Stuffing,
		"missing_subheadings": w.MissingSubheadings,
	}
	for key, value := range defaults {
		v.SetDefault("analyzer.content."+key, value)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPagesLimit > 0 && c.Crawler.MaxPagesDefault > c.Crawler.MaxPagesLimit {
		return fmt.Errorf("crawler.max_pages_default must be <= crawler.max_pages_limit")
	}
	switch crawler.RenderMode(c.Crawler.DefaultRender) {
	case "", crawler.RenderAuto, crawler.RenderAlways, crawler.RenderNever:
	default:
		return fmt.Errorf("crawler.default_render must be auto, always or never")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Tools.BulkConcurrency < 0 {
		return fmt.Errorf("tools.bulk_concurrency must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Registry.Backend {
	case "", "memory":
	case "redis":
		if c.Registry.Redis.Addr == "" {
			return fmt.Errorf("registry.redis.addr must be set for the redis registry")
		}
	case "sqlite":
	default:
		return fmt.Errorf("registry.backend %q is not supported", c.Registry.Backend)
	}
	switch c.Storage.Backend {
	case "", "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for local storage")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for gcs storage")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	switch c.Keywords.Source {
	case "", "none", "simulated":
	case "static":
		if c.Keywords.File == "" {
			return fmt.Errorf("keywords.file must be set for the static keyword source")
		}
	default:
		return fmt.Errorf("keywords.source %q is not supported", c.Keywords.Source)
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("telemetry.exporter %q is not supported", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// JobBudget returns the wall-clock budget of one job.
func (c Config) JobBudget() time.Duration {
	if c.Crawler.JobTimeout <= 0 {
		return 10 * time.Minute
	}
	return c.Crawler.JobTimeout
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ApplyCrawlDefaults fills unset crawl parameters from configuration and
// clamps MaxPages to the configured limit.
func (c Config) ApplyCrawlDefaults(p crawler.CrawlParams) crawler.CrawlParams {
	if p.MaxPages <= 0 {
		p.MaxPages = c.Crawler.MaxPagesDefault
	}
	if c.Crawler.MaxPagesLimit > 0 && p.MaxPages > c.Crawler.MaxPagesLimit {
		p.MaxPages = c.Crawler.MaxPagesLimit
	}
	if p.MaxDepth <= 0 {
		p.MaxDepth = c.Crawler.MaxDepthDefault
	}
	if p.Options.Render == "" {
		p.Options.Render = crawler.RenderMode(c.Crawler.DefaultRender)
	}
	return p
}
