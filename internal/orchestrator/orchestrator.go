// Package orchestrator runs one crawl job: a bounded worker pool drains the
// frontier, every page flows through extraction and the analyzer pipeline,
// and the site-wide passes run once the frontier is empty.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
	"github.com/JakeFAU/seo-site-crawler/internal/frontier"
	"github.com/JakeFAU/seo-site-crawler/internal/linkgraph"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/progress"
)

const (
	defaultConcurrency = 5
	recordTimeout      = 5 * time.Second
)

// Scorer returns Core Web Vitals for one URL.
type Scorer interface {
	Score(ctx context.Context, pageURL string) (crawler.Performance, error)
}

// SitemapAuditor inspects robots.txt and the sitemap of a site.
type SitemapAuditor interface {
	Audit(ctx context.Context, rootURL string) (*crawler.SitemapAudit, error)
}

// GraphExporter ships a finished link graph to an external store.
type GraphExporter interface {
	Export(ctx context.Context, jobID string, g *linkgraph.Graph) error
}

// Config tunes the worker pool.
type Config struct {
	Concurrency int
	// JobTimeout bounds the whole crawl; zero means no budget.
	JobTimeout  time.Duration
	ArchiveHTML bool
	BlobPrefix  string
	ContentType string
}

// Deps are the collaborators of a crawl. Fetcher and Pipeline are required.
type Deps struct {
	Fetcher  crawler.Fetcher
	Pipeline *analyzer.Pipeline
	Robots   crawler.RobotsChecker
	Blobs    crawler.BlobStore
	Recorder crawler.PageRecorder
	Scorer   Scorer
	Sitemap  SitemapAuditor
	Exporter GraphExporter
	Progress progress.Emitter
	Hasher   crawler.Hasher
	Clock    crawler.Clock
	Logger   *zap.Logger
}

// Orchestrator executes crawl jobs. One instance serves many jobs; all
// per-job state lives in a crawl value.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and applies defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("orchestrator: fetcher is required")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("orchestrator: analyzer pipeline is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: logger.Named("orchestrator")}, nil
}

// crawl is the state of one running job.
type crawl struct {
	job      crawler.Job
	params   crawler.CrawlParams
	jobUUID  uuid.UUID
	frontier *frontier.Frontier
	logger   *zap.Logger

	mu      sync.Mutex
	results []crawler.PageResult
	retries int
	panics  int
}

func (c *crawl) add(result crawler.PageResult, retries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	c.retries += retries
}

func (c *crawl) panicked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics++
}

// Run crawls job and returns its report. The report is assembled even when
// the crawl is cut short; the error is then ErrCancelled, ErrBudgetExceeded
// or wraps ErrJobFatal, and Report.Partial is set.
func (o *Orchestrator) Run(ctx context.Context, job crawler.Job) (crawler.Report, error) {
	if job.Params.Crawl == nil {
		return crawler.Report{}, fmt.Errorf("job %s has no crawl parameters", job.ID)
	}
	params := *job.Params.Crawl
	started := o.deps.Clock.Now()
	logger := o.log.With(zap.String("job_id", job.ID))

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
	}
	defer cancel()

	robots := o.deps.Robots
	if !params.Options.RespectRobots || robots == nil {
		robots = crawler.AllowAllRobots{}
	}
	fr, err := frontier.New(frontier.Config{
		RootURL:         params.RootURL,
		MaxPages:        params.MaxPages,
		MaxDepth:        params.MaxDepth,
		AllowSubdomains: params.Options.AllowSubdomains,
		Robots:          robots,
		Exclude:         crawler.NewBlocklist(params.Options.ExcludePatterns),
	})
	if err != nil {
		return crawler.Report{}, fmt.Errorf("build frontier: %w", err)
	}
	defer fr.Close()

	c := &crawl{
		job:      job,
		params:   params,
		jobUUID:  progress.JobID(job.ID),
		frontier: fr,
		logger:   logger,
	}

	if !fr.Offer(runCtx, fr.Root(), 0) {
		return crawler.Report{JobID: job.ID, RootURL: fr.Root(), StartedAt: started, FinishedAt: o.deps.Clock.Now()},
			fmt.Errorf("root url %s is excluded by robots.txt or exclude patterns", fr.Root())
	}

	var audit *crawler.SitemapAudit
	if params.Options.IncludeSitemap && o.deps.Sitemap != nil {
		audit = o.seedFromSitemap(runCtx, c)
	}

	workers := min(o.cfg.Concurrency, params.MaxPages)
	logger.Info("crawl started",
		zap.String("root_url", fr.Root()),
		zap.Int("max_pages", params.MaxPages),
		zap.Int("max_depth", params.MaxDepth),
		zap.Int("workers", workers))

	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			o.work(runCtx, c, i)
			return nil
		})
	}
	_ = g.Wait()

	var runErr error
	switch {
	case ctx.Err() != nil:
		runErr = crawler.ErrCancelled
	case runCtx.Err() != nil:
		runErr = crawler.ErrBudgetExceeded
	case c.panics >= workers:
		runErr = fmt.Errorf("%w: all %d crawl workers panicked", crawler.ErrJobFatal, workers)
	}

	report, graph := o.assemble(c, audit, started)
	report.Partial = runErr != nil
	if runErr == nil && o.deps.Exporter != nil {
		if err := o.deps.Exporter.Export(ctx, job.ID, graph); err != nil {
			logger.Warn("link graph export failed", zap.Error(err))
		}
	}
	for reason, n := range fr.Dropped() {
		metrics.ObserveFrontierDrops(string(reason), n)
	}
	logger.Info("crawl finished",
		zap.Int("pages", report.Counters.PagesCrawled),
		zap.Int("issues", len(report.Issues)),
		zap.Duration("elapsed", report.FinishedAt.Sub(started)),
		zap.Error(runErr))
	return report, runErr
}

// work is one pool goroutine. A panic while visiting a page kills only this
// worker; the page is still recorded as failed.
func (o *Orchestrator) work(ctx context.Context, c *crawl, worker int) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	defer func() {
		if r := recover(); r != nil {
			c.panicked()
			c.logger.Error("crawl worker died outside page visit", zap.Int("worker", worker), zap.Any("panic", r))
		}
	}()
	for {
		entry, ok := c.frontier.Take(ctx)
		if !ok {
			return
		}
		if err := o.process(ctx, c, entry); err != nil {
			c.panicked()
			c.logger.Error("crawl worker died",
				zap.Int("worker", worker),
				zap.String("url", entry.URL),
				zap.Error(err))
			return
		}
	}
}

// process visits one entry and records exactly one result for it.
func (o *Orchestrator) process(ctx context.Context, c *crawl, entry crawler.FrontierEntry) error {
	defer c.frontier.Done()
	result, retries, err := o.visitRecovered(ctx, c, entry)
	c.add(result, retries)
	o.pageDone(ctx, c, result)
	return err
}

func (o *Orchestrator) visitRecovered(
	ctx context.Context,
	c *crawl,
	entry crawler.FrontierEntry,
) (result crawler.PageResult, retries int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			result, retries = failedResult(entry, err), 0
		}
	}()
	result, retries = o.visit(ctx, c, entry)
	return result, retries, nil
}

func (o *Orchestrator) visit(ctx context.Context, c *crawl, entry crawler.FrontierEntry) (crawler.PageResult, int) {
	site := crawler.Hostname(entry.URL)
	o.emit(c, progress.Event{Stage: progress.StageFetchStart, Site: site, URL: entry.URL, Depth: entry.Depth})

	resp, err := o.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{
		JobID:  c.job.ID,
		URL:    entry.URL,
		Depth:  entry.Depth,
		Render: c.params.Options.Render,
	})
	if err != nil {
		retries := 0
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			retries = max(0, fetchErr.Attempts-1)
		}
		return failedResult(entry, err), retries
	}

	var issues []crawler.Issue
	page, err := extract.Page(resp, entry.Depth, c.frontier)
	if err != nil {
		issues = append(issues, crawler.Issue{
			URL:      entry.URL,
			Category: crawler.CategoryAnalyzer,
			Code:     "extract_failed",
			Severity: crawler.SeverityWarning,
			Message:  fmt.Sprintf("page could not be parsed: %v", err),
		})
	}
	page.URL = entry.URL
	if o.deps.Hasher != nil && len(resp.Body) > 0 {
		if sum, err := o.deps.Hasher.Hash(resp.Body); err == nil {
			page.ContentHash = sum
		}
	}
	o.archive(ctx, c, &page)

	analysis := o.deps.Pipeline.Run(&page)
	result := crawler.PageResult{
		Page:    page,
		Issues:  append(issues, analysis.Issues...),
		Metrics: analysis.Metrics,
	}
	if c.params.CheckPerformance && o.deps.Scorer != nil && page.StatusCode < 400 && page.RenderedHTML != "" {
		perf := o.score(ctx, page.URL)
		result.Performance = &perf
	}

	for _, link := range page.Links.Internal {
		c.frontier.Offer(ctx, link.URL, entry.Depth+1)
	}
	return result, max(0, resp.Attempts-1)
}

// failedResult records a URL that never produced a usable response.
func failedResult(entry crawler.FrontierEntry, err error) crawler.PageResult {
	code := "fetch_error"
	switch {
	case errors.Is(err, crawler.ErrRedirectLoop):
		code = "redirect_loop"
	case errors.Is(err, crawler.ErrTooManyRedirects):
		code = "too_many_redirects"
	}
	return crawler.PageResult{
		Page: crawler.PageRecord{
			URL:        entry.URL,
			FinalURL:   entry.URL,
			Depth:      entry.Depth,
			FetchError: err.Error(),
		},
		Issues: []crawler.Issue{{
			URL:          entry.URL,
			Category:     crawler.CategoryFetch,
			Code:         code,
			Severity:     crawler.SeverityError,
			Message:      fmt.Sprintf("Page could not be fetched: %v", err),
			SuggestedFix: "Check that the URL resolves and the server answers within the fetch timeout.",
		}},
	}
}

func (o *Orchestrator) archive(ctx context.Context, c *crawl, page *crawler.PageRecord) {
	if !(o.cfg.ArchiveHTML || c.params.Options.ArchiveHTML) || o.deps.Blobs == nil || page.RenderedHTML == "" {
		return
	}
	name := page.ContentHash
	if name == "" {
		name = fmt.Sprintf("page-%d", len(page.RenderedHTML))
	}
	key := path.Join(o.cfg.BlobPrefix, c.job.ID, name+".html")
	uri, err := o.deps.Blobs.PutObject(ctx, key, o.cfg.ContentType, []byte(page.RenderedHTML))
	if err != nil {
		c.logger.Warn("archive rendered html failed", zap.String("url", page.URL), zap.Error(err))
		return
	}
	page.BlobURI = uri
}

// score never fails; an unreachable scorer yields Available=false.
func (o *Orchestrator) score(ctx context.Context, pageURL string) crawler.Performance {
	perf, err := o.deps.Scorer.Score(ctx, pageURL)
	if err != nil {
		return crawler.Performance{Available: false, Reason: err.Error()}
	}
	return perf
}

func (o *Orchestrator) seedFromSitemap(ctx context.Context, c *crawl) *crawler.SitemapAudit {
	audit, err := o.deps.Sitemap.Audit(ctx, c.frontier.Root())
	if err != nil {
		c.logger.Warn("sitemap audit failed", zap.Error(err))
		return nil
	}
	seeded := 0
	for _, u := range audit.URLs {
		if c.frontier.Offer(ctx, u.Loc, 1) {
			seeded++
		}
	}
	c.logger.Debug("frontier seeded from sitemap", zap.Int("urls", len(audit.URLs)), zap.Int("accepted", seeded))
	return audit
}

// pageDone persists a finished page and reports it. Recording outlives
// cancellation so pages fetched before a cancel are not lost.
func (o *Orchestrator) pageDone(ctx context.Context, c *crawl, result crawler.PageResult) {
	page := result.Page
	if o.deps.Recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := o.deps.Recorder.RecordPage(recordCtx, c.job.ID, result); err != nil {
			c.logger.Warn("record page failed", zap.String("url", page.URL), zap.Error(err))
		}
		cancel()
	}
	metrics.ObservePage(page.URL, page.StatusCode, page.PageSizeBytes)

	site := crawler.Hostname(page.URL)
	o.emit(c, progress.Event{
		Stage:       progress.StageFetchDone,
		Site:        site,
		URL:         page.URL,
		Depth:       page.Depth,
		Bytes:       page.PageSizeBytes,
		Pages:       1,
		StatusClass: progress.ClassifyStatus(page.StatusCode),
		Dur:         time.Duration(page.LoadTimeMS) * time.Millisecond,
		Note:        page.FetchError,
	})
	o.emit(c, progress.Event{
		Stage:  progress.StagePageAnalyzed,
		Site:   site,
		URL:    page.URL,
		Depth:  page.Depth,
		Issues: int64(len(result.Issues)),
	})
}

func (o *Orchestrator) emit(c *crawl, evt progress.Event) {
	evt.JobID = c.jobUUID
	evt.TS = o.deps.Clock.Now()
	o.deps.Progress.Emit(evt)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
