package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/api"
	"github.com/JakeFAU/seo-site-crawler/internal/clock/system"
	"github.com/JakeFAU/seo-site-crawler/internal/config"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/seo-site-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/seo-site-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/seo-site-crawler/internal/fetcher/render"
	"github.com/JakeFAU/seo-site-crawler/internal/hash/sha256"
	"github.com/JakeFAU/seo-site-crawler/internal/headless/detector"
	"github.com/JakeFAU/seo-site-crawler/internal/id/uuid"
	"github.com/JakeFAU/seo-site-crawler/internal/inspect"
	"github.com/JakeFAU/seo-site-crawler/internal/keywords"
	neo4jexporter "github.com/JakeFAU/seo-site-crawler/internal/linkgraph/neo4j"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/orchestrator"
	"github.com/JakeFAU/seo-site-crawler/internal/perf"
	"github.com/JakeFAU/seo-site-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/seo-site-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/seo-site-crawler/internal/progress/sinks"
	kafkapublisher "github.com/JakeFAU/seo-site-crawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/seo-site-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/seo-site-crawler/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/seo-site-crawler/internal/queue/memory"
	"github.com/JakeFAU/seo-site-crawler/internal/sitemap"
	gcsstorage "github.com/JakeFAU/seo-site-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/seo-site-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/seo-site-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/seo-site-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/seo-site-crawler/internal/storage/redis"
	sqlitestore "github.com/JakeFAU/seo-site-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/seo-site-crawler/internal/store"
	"github.com/JakeFAU/seo-site-crawler/internal/telemetry"
	"github.com/JakeFAU/seo-site-crawler/internal/worker"
)

// Version is stamped into trace resources.
var Version = "dev"

// fetchers are the static fetcher and its render-promoting wrapper.
type fetchers struct {
	static   crawler.Fetcher
	rendered crawler.Fetcher
}

// persistence groups the optional postgres stores.
type persistence struct {
	pages    crawler.PageRecorder
	progress store.ProgressRepository
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()
	// Close needs a queue even when Build fails early.
	app.queue = queuememory.NewQueue(cfg.Crawler.QueueDepth)

	metrics.Init()
	shutdownTracer, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Exporter:    cfg.Telemetry.Exporter,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.onClose("tracer", shutdownTracer)

	logger.Info("building application dependencies",
		zap.String("registry", cfg.Registry.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("workers", cfg.Crawler.Workers))

	jobs, err := setupRegistry(ctx, app)
	if err != nil {
		return nil, err
	}
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	db, err := setupDatabase(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, topic, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	emitter := setupProgress(ctx, app, db.progress)
	source, err := keywords.New(keywords.Config{
		Source:      cfg.Keywords.Source,
		File:        cfg.Keywords.File,
		Timeout:     time.Duration(cfg.Keywords.TimeoutSeconds) * time.Second,
		MaxKeywords: cfg.Keywords.MaxKeywords,
	}, logger.Named("keywords"))
	if err != nil {
		return nil, fmt.Errorf("keyword source init failed: %w", err)
	}

	fetchers := setupFetchers(app)
	orch, err := setupOrchestrator(ctx, app, fetchers.rendered, blobs, db.pages, emitter)
	if err != nil {
		return nil, err
	}
	inspector, err := inspect.New(inspect.Config{
		Concurrency: cfg.Tools.BulkConcurrency,
		URLTimeout:  time.Duration(cfg.Tools.URLTimeoutSeconds) * time.Second,
		Weights:     cfg.Analyzer.Content,
	}, fetchers.static, fetchers.rendered, logger)
	if err != nil {
		return nil, fmt.Errorf("inspector init failed: %w", err)
	}

	clock := system.New()
	cancels := worker.NewCancels()
	workers := make([]*worker.Worker, 0, cfg.Crawler.Workers)
	for i := range cfg.Crawler.Workers {
		workers = append(workers, worker.New(i, worker.Deps{
			Queue:     app.queue,
			Jobs:      jobs,
			Crawls:    orch,
			Inspector: inspector,
			Keywords:  source,
			Publisher: publisher,
			Progress:  emitter,
			Cancels:   cancels,
			Clock:     clock,
			Logger:    logger,
		}, worker.Config{Topic: topic}))
	}
	app.dispatch = dispatcher.New(dispatcher.Deps{
		Queue:   app.queue,
		Jobs:    jobs,
		IDs:     uuid.New(),
		Clock:   clock,
		Cancels: cancels,
		Logger:  logger,
	}, workers)

	app.apiServer = api.NewServer(api.Options{
		Jobs:     app.dispatch,
		Progress: db.progress,
		Config:   cfg,
		Ready:    app.Ready,
		Logger:   logger,
	})
	return app, nil
}

func setupRegistry(ctx context.Context, app *App) (crawler.JobStore, error) {
	cfg := app.cfg.Registry
	switch cfg.Backend {
	case "redis":
		st, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis registry init failed: %w", err)
		}
		app.onClose("redis registry", func(context.Context) error { return st.Close() })
		app.onReady("redis registry", st.Ping)
		app.logger.Info("using redis job registry", zap.String("addr", cfg.Redis.Addr))
		return st, nil
	case "sqlite":
		st, err := sqlitestore.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite registry init failed: %w", err)
		}
		app.onClose("sqlite registry", func(context.Context) error { return st.Close() })
		app.onReady("sqlite registry", st.Ping)
		app.logger.Info("using sqlite job registry", zap.String("path", cfg.SQLite.Path))
		return st, nil
	default:
		app.logger.Info("using in-memory job registry")
		return memorystorage.NewJobStore(), nil
	}
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.onClose("gcs client", func(context.Context) error { return client.Close() })
		blobs, err := gcsstorage.New(ctx, client, gcsstorage.Config{Bucket: cfg.Bucket, VerifyBucket: true}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local storage backend", zap.String("path", cfg.BaseDir))
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupDatabase(ctx context.Context, app *App) (persistence, error) {
	cfg := app.cfg.DB
	if cfg.DSN == "" {
		app.logger.Warn("no DSN specified for database, skipping page and progress stores")
		return persistence{}, nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return persistence{}, fmt.Errorf("postgres init failed: %w", err)
	}
	app.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	app.onReady("postgres", pool.Ping)

	pages, err := pgstore.NewPageStore(pool, cfg.PagesTable, cfg.IssuesTable)
	if err != nil {
		return persistence{}, fmt.Errorf("page store init failed: %w", err)
	}
	progressStore, err := pgstore.NewProgressStore(pool, cfg.ProgressTable)
	if err != nil {
		return persistence{}, fmt.Errorf("progress store init failed: %w", err)
	}
	app.logger.Info("postgres stores initialized",
		zap.String("pages_table", cfg.PagesTable),
		zap.String("progress_table", cfg.ProgressTable))
	return persistence{pages: pages, progress: progressStore}, nil
}

// setupPublisher picks Kafka, then Pub/Sub, then an in-memory publisher, and
// returns the topic completion messages go to.
func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, string, error) {
	cfg := app.cfg
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		pub, err := kafkapublisher.New(kafkapublisher.Config{Brokers: cfg.Kafka.Brokers})
		if err != nil {
			return nil, "", fmt.Errorf("kafka publisher init failed: %w", err)
		}
		app.onClose("kafka publisher", func(context.Context) error { return pub.Close() })
		topic := firstNonEmpty(cfg.Kafka.Topic, cfg.Crawler.ResultTopic)
		app.logger.Info("kafka publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", topic))
		return pub, topic, nil
	case cfg.PubSub.ProjectID != "":
		client, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, "", fmt.Errorf("pubsub client init failed: %w", err)
		}
		pub := pubsubpublisher.New(client)
		app.onClose("pubsub client", func(context.Context) error {
			pub.Close()
			return client.Close()
		})
		topic := firstNonEmpty(cfg.PubSub.TopicName, cfg.Crawler.ResultTopic)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.PubSub.ProjectID),
			zap.String("topic", topic))
		return pub, topic, nil
	default:
		app.logger.Warn("no broker configured, using in-memory publisher")
		return memorypublisher.NewBounded(1000), cfg.Crawler.ResultTopic, nil
	}
}

func setupProgress(ctx context.Context, app *App, repo store.ProgressRepository) progress.Emitter {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress tracking disabled")
		return progress.Nop{}
	}
	var sinks []progress.Sink
	if repo != nil {
		sinks = append(sinks, progresssinks.NewStoreSink(repo, app.logger.Named("progress_store")))
	}
	if cfg.LogEnabled {
		sinks = append(sinks, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		// A second Build in the same process finds the collectors registered.
		app.logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		sinks = append(sinks, promSink)
	}
	if len(sinks) == 0 {
		app.logger.Warn("progress tracking enabled but no sinks configured")
		return progress.Nop{}
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(cfg.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}, sinks...)
	app.onClose("progress hub", hub.Close)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinks)))
	return hub
}

func setupFetchers(app *App) fetchers {
	cfg := app.cfg
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DomainRPS,
		DefaultBurst: cfg.Crawler.DomainBurst,
	})
	retry := crawler.NewExponentialRetryPolicy(
		cfg.HTTP.MaxRetries,
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxRedirects: cfg.HTTP.MaxRedirects,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	}, retry, limiter, app.logger.Named("fetcher"))

	var browser crawler.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Headless.SettleMs) * time.Millisecond,
			Viewport: headlessfetcher.Viewport{
				Width:  int64(cfg.Headless.ViewportWidth),
				Height: int64(cfg.Headless.ViewportHeight),
				Mobile: cfg.Headless.Mobile,
			},
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed, rendering disabled", zap.Error(err))
		} else {
			browser = hf
			app.onClose("headless browser", func(context.Context) error {
				hf.Close()
				return nil
			})
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	var promote render.Detector
	if browser != nil {
		promote = detector.NewHeuristic(cfg.Headless.PromotionThresh)
	}
	return fetchers{static: static, rendered: render.New(static, browser, promote, app.logger)}
}

func setupOrchestrator(
	ctx context.Context,
	app *App,
	fetcher crawler.Fetcher,
	blobs crawler.BlobStore,
	pages crawler.PageRecorder,
	emitter progress.Emitter,
) (*orchestrator.Orchestrator, error) {
	cfg := app.cfg
	fetchTimeout := cfg.FetchTimeout()

	httpClient := &http.Client{Timeout: fetchTimeout}
	deps := orchestrator.Deps{
		Fetcher:  fetcher,
		Pipeline: analyzer.Default(cfg.Analyzer.Content, app.logger.Named("analyzer")),
		Robots:   crawler.NewRobotsEnforcer(true, cfg.Crawler.UserAgent, httpClient, app.logger.Named("robots")),
		Blobs:    blobs,
		Progress: emitter,
		Hasher:   sha256.New(),
		Clock:    system.New(),
		Logger:   app.logger,
		Sitemap: sitemap.New(httpClient, sitemap.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   fetchTimeout,
		}, app.logger.Named("sitemap")),
	}
	if pages != nil {
		deps.Recorder = pages
	}

	scorer, err := perf.New(perf.Config{
		Provider: cfg.Performance.Provider,
		Endpoint: cfg.Performance.Endpoint,
		APIKey:   cfg.Performance.APIKey,
		Strategy: cfg.Performance.Strategy,
		Timeout:  time.Duration(cfg.Performance.TimeoutSeconds) * time.Second,
	}, app.logger.Named("perf"))
	if err != nil {
		return nil, fmt.Errorf("performance scorer init failed: %w", err)
	}
	deps.Scorer = scorer

	if cfg.Neo4j.URI != "" {
		exp, err := neo4jexporter.Dial(ctx, neo4jexporter.Config{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		}, app.logger.Named("neo4j"))
		if err != nil {
			return nil, fmt.Errorf("neo4j exporter init failed: %w", err)
		}
		app.onClose("neo4j", exp.Close)
		deps.Exporter = exp
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Concurrency: cfg.Crawler.Concurrency,
		JobTimeout:  cfg.JobBudget(),
		ArchiveHTML: cfg.Crawler.ArchiveHTML,
		BlobPrefix:  cfg.Storage.Prefix,
		ContentType: cfg.Storage.ContentType,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	return orch, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
