// Package worker executes queued jobs: it moves each job through the
// registry's lifecycle, runs the crawl or competitive computation, and writes
// the result back.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/inspect"
	"github.com/JakeFAU/seo-site-crawler/internal/keywords"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/progress"
)

const finalWriteTimeout = 10 * time.Second

const tracerName = "github.com/JakeFAU/seo-site-crawler/internal/worker"

// CrawlRunner runs one crawl job to completion.
type CrawlRunner interface {
	Run(ctx context.Context, job crawler.Job) (crawler.Report, error)
}

// Inspector runs the single-page content review and bulk URL checks.
type Inspector interface {
	OptimizeContent(ctx context.Context, jobID string, p crawler.ContentOptimizerParams) (analyzer.Optimization, error)
	CheckURLs(ctx context.Context, jobID string, p crawler.BulkURLParams) (inspect.BulkReport, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a completion message per finished job. Empty disables publishing.
	Topic string
	// TopKeywords bounds the keyword list of competitor overviews.
	TopKeywords int
}

// Deps are the collaborators of a Worker. Queue, Jobs and Clock are required.
type Deps struct {
	Queue     crawler.Queue
	Jobs      crawler.JobStore
	Crawls    CrawlRunner
	Inspector Inspector
	Keywords  keywords.Source
	Publisher crawler.Publisher
	Progress  progress.Emitter
	Cancels   *Cancels
	Clock     crawler.Clock
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer    trace.Tracer
	Logger    *zap.Logger
}

// Worker consumes queue items one at a time.
type Worker struct {
	id     int
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker. id only labels log lines.
func New(id int, deps Deps, cfg Config) *Worker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Cancels == nil {
		deps.Cancels = NewCancels()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if cfg.TopKeywords <= 0 {
		cfg.TopKeywords = 10
	}
	return &Worker{
		id:     id,
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.Named("worker").With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.String("kind", string(item.Kind)))
		w.Process(ctx, item)
	}
}

// Process executes one queue item. Jobs already finished (for example
// cancelled while still pending) are skipped.
func (w *Worker) Process(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))
	job, err := w.deps.Jobs.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		return
	}
	if job.State.Terminal() {
		logger.Info("skipping finished job", zap.String("state", string(job.State)))
		return
	}

	// Registered before the RUNNING write so a cancel that observes RUNNING
	// always finds the job's cancel func.
	cancelCtx, cancel := context.WithCancel(ctx)
	w.deps.Cancels.register(job.ID, cancel)
	defer func() {
		w.deps.Cancels.remove(job.ID)
		cancel()
	}()

	if err := w.deps.Jobs.UpdateJobState(ctx, job.ID, crawler.JobStateRunning, crawler.JobUpdate{
		At: w.deps.Clock.Now(),
	}); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(job.Kind), string(crawler.JobStateRunning))
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	jobCtx, span := w.deps.Tracer.Start(cancelCtx, "job."+string(job.Kind), trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.kind", string(job.Kind)),
		attribute.Int("worker.id", w.id),
	))
	defer span.End()

	w.emit(job, progress.Event{Stage: progress.StageJobStart})
	var (
		result any
		runErr error
	)
	if jobCtx.Err() != nil {
		runErr = crawler.ErrCancelled
	} else {
		result, runErr = w.execute(jobCtx, job)
	}

	update := crawler.JobUpdate{At: w.deps.Clock.Now()}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			logger.Error("encode result failed", zap.Error(err))
			if runErr == nil {
				runErr = fmt.Errorf("%w: encode result: %v", crawler.ErrJobFatal, err)
			}
		} else {
			update.Result = raw
		}
	}

	state := crawler.JobStateSuccess
	if runErr != nil {
		state = crawler.JobStateFailure
		update.Error = FailureReason(runErr)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, update.Error)
		logger.Warn("job failed", zap.String("reason", update.Error), zap.Error(runErr))
		w.emit(job, progress.Event{Stage: progress.StageJobError, Note: update.Error})
	} else {
		logger.Info("job succeeded", zap.String("kind", string(job.Kind)))
		w.emit(job, progress.Event{Stage: progress.StageJobDone})
	}

	// The terminal write must land even when the job context was cancelled.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer writeCancel()
	span.SetAttributes(attribute.String("job.state", string(state)))
	if err := w.deps.Jobs.UpdateJobState(writeCtx, job.ID, state, update); err != nil {
		logger.Error("final job state update failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(job.Kind), string(state))
	w.publish(writeCtx, job, state, update)
}

// FailureReason is the human-readable reason stored on a failed job.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, crawler.ErrCancelled), errors.Is(err, context.Canceled):
		return crawler.ErrCancelled.Error()
	case errors.Is(err, crawler.ErrBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		return crawler.ErrBudgetExceeded.Error()
	default:
		return err.Error()
	}
}

func (w *Worker) execute(ctx context.Context, job crawler.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			result = nil
			err = fmt.Errorf("%w: internal error", crawler.ErrJobFatal)
		}
	}()

	switch job.Kind {
	case crawler.JobKindCrawl:
		if w.deps.Crawls == nil {
			return nil, fmt.Errorf("%w: crawling is not configured", crawler.ErrJobFatal)
		}
		report, err := w.deps.Crawls.Run(ctx, job)
		if err != nil && len(report.Pages) == 0 && report.RootURL == "" {
			return nil, err
		}
		return report, err
	case crawler.JobKindKeywordGap:
		return w.keywordGap(ctx, job.Params.KeywordGap)
	case crawler.JobKindShareOfVoice:
		return w.shareOfVoice(ctx, job.Params.ShareOfVoice)
	case crawler.JobKindCompetitorOverview:
		return w.overview(ctx, job.Params.Overview)
	case crawler.JobKindContentOptimizer:
		if w.deps.Inspector == nil {
			return nil, fmt.Errorf("%w: content review is not configured", crawler.ErrJobFatal)
		}
		if job.Params.ContentOptimizer == nil {
			return nil, fmt.Errorf("content optimizer job has no parameters")
		}
		out, err := w.deps.Inspector.OptimizeContent(ctx, job.ID, *job.Params.ContentOptimizer)
		if err != nil {
			return nil, err
		}
		return out, nil
	case crawler.JobKindBulkURLs:
		if w.deps.Inspector == nil {
			return nil, fmt.Errorf("%w: bulk URL checks are not configured", crawler.ErrJobFatal)
		}
		if job.Params.BulkURLs == nil {
			return nil, fmt.Errorf("bulk URL job has no parameters")
		}
		report, err := w.deps.Inspector.CheckURLs(ctx, job.ID, *job.Params.BulkURLs)
		if err != nil {
			return nil, err
		}
		return report, nil
	default:
		return nil, fmt.Errorf("unsupported job kind %q", job.Kind)
	}
}

func (w *Worker) rankings(ctx context.Context, domain string, kws []string) (competitive.Rankings, error) {
	if w.deps.Keywords == nil {
		return competitive.Rankings{}, nil
	}
	r, err := w.deps.Keywords.FetchRankings(ctx, domain, kws)
	if err != nil {
		if ctx.Err() != nil {
			return nil, crawler.ErrCancelled
		}
		return nil, fmt.Errorf("fetch rankings for %s: %w", domain, err)
	}
	return r, nil
}

func (w *Worker) keywordGap(ctx context.Context, p *crawler.KeywordGapParams) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("keyword gap job has no parameters")
	}
	var a, b competitive.Rankings
	var errA, errB error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a, errA = w.rankings(ctx, p.DomainA, p.Keywords) }()
	go func() { defer wg.Done(); b, errB = w.rankings(ctx, p.DomainB, p.Keywords) }()
	wg.Wait()
	if err := errors.Join(errA, errB); err != nil {
		return nil, err
	}
	return competitive.KeywordGap(p.DomainA, p.DomainB, a, b), nil
}

func (w *Worker) shareOfVoice(ctx context.Context, p *crawler.ShareOfVoiceParams) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("share of voice job has no parameters")
	}
	domains := make([]competitive.DomainRankings, len(p.Domains))
	errs := make([]error, len(p.Domains))
	var wg sync.WaitGroup
	for i, d := range p.Domains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := w.rankings(ctx, d, p.Keywords)
			domains[i] = competitive.DomainRankings{Domain: d, Rankings: r}
			errs[i] = err
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return competitive.ShareOfVoice(domains, p.Keywords), nil
}

func (w *Worker) overview(ctx context.Context, p *crawler.OverviewParams) (any, error) {
	if p == nil {
		return nil, fmt.Errorf("overview job has no parameters")
	}
	r, err := w.rankings(ctx, p.Domain, nil)
	if err != nil {
		return nil, err
	}
	return competitive.CompetitorOverview(p.Domain, r, w.cfg.TopKeywords), nil
}

func (w *Worker) emit(job crawler.Job, evt progress.Event) {
	if job.Kind != crawler.JobKindCrawl {
		return
	}
	evt.JobID = progress.JobID(job.ID)
	evt.TS = w.deps.Clock.Now()
	if job.Params.Crawl != nil {
		evt.Site = crawler.Hostname(job.Params.Crawl.RootURL)
	}
	w.deps.Progress.Emit(evt)
}

// Completion is the message published when a job finishes.
type Completion struct {
	JobID      string           `json:"job_id"`
	Kind       crawler.JobKind  `json:"kind"`
	State      crawler.JobState `json:"state"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// MessageKey keys broker partitions by job.
func (c Completion) MessageKey() string { return c.JobID }

func (w *Worker) publish(ctx context.Context, job crawler.Job, state crawler.JobState, update crawler.JobUpdate) {
	if w.cfg.Topic == "" || w.deps.Publisher == nil {
		return
	}
	msg := Completion{
		JobID:      job.ID,
		Kind:       job.Kind,
		State:      state,
		Error:      update.Error,
		FinishedAt: update.At,
	}
	id, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, msg)
	if err != nil {
		w.logger.Warn("publish completion failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	w.logger.Debug("completion published", zap.String("job_id", job.ID), zap.String("message_id", id))
}
