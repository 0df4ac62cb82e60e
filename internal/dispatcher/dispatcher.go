// Package dispatcher owns the job submission path and fans queued work out
// to a pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/worker"
)

// ErrJobFinished is returned when cancelling a job that already ended.
var ErrJobFinished = errors.New("job already finished")

// Deps wires a Dispatcher.
type Deps struct {
	Queue   crawler.Queue
	Jobs    crawler.JobStore
	IDs     crawler.IDGenerator
	Clock   crawler.Clock
	Cancels *worker.Cancels
	Logger  *zap.Logger
}

// Dispatcher registers jobs, queues them and runs the worker pool.
type Dispatcher struct {
	deps    Deps
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher. Workers must share deps.Cancels so Cancel can
// reach running jobs.
func New(deps Deps, workers []*worker.Worker) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Cancels == nil {
		deps.Cancels = worker.NewCancels()
	}
	return &Dispatcher{
		deps:    deps,
		workers: workers,
		logger:  deps.Logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit registers a PENDING job and queues it for execution.
func (d *Dispatcher) Submit(ctx context.Context, kind crawler.JobKind, params crawler.JobParams) (crawler.Job, error) {
	id, err := d.deps.IDs.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("new job id: %w", err)
	}
	job := crawler.Job{
		ID:        id,
		Kind:      kind,
		State:     crawler.JobStatePending,
		CreatedAt: d.deps.Clock.Now(),
		Params:    params,
	}
	if err := d.deps.Jobs.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("register job: %w", err)
	}
	metrics.ObserveJob(string(kind), string(crawler.JobStatePending))

	item := crawler.QueueItem{JobID: job.ID, Kind: kind, Submitted: job.CreatedAt.UnixNano()}
	if err := d.Enqueue(ctx, item); err != nil {
		// A job nobody will run must not stay PENDING forever.
		failCtx := context.WithoutCancel(ctx)
		if uerr := d.deps.Jobs.UpdateJobState(failCtx, job.ID, crawler.JobStateFailure, crawler.JobUpdate{
			At:    d.deps.Clock.Now(),
			Error: "could not queue job",
		}); uerr != nil {
			d.logger.Error("fail unqueued job", zap.String("job_id", job.ID), zap.Error(uerr))
		}
		return crawler.Job{}, err
	}
	d.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("kind", string(kind)))
	return job, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.deps.Queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Get returns the registry entry for id.
func (d *Dispatcher) Get(ctx context.Context, id string) (crawler.Job, error) {
	job, err := d.deps.Jobs.GetJob(ctx, id)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the newest jobs first.
func (d *Dispatcher) List(ctx context.Context, limit int) ([]crawler.Job, error) {
	jobs, err := d.deps.Jobs.ListJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Await blocks until the job is terminal or ctx ends; on timeout the last
// observed job is returned with the context error.
func (d *Dispatcher) Await(ctx context.Context, id string) (crawler.Job, error) {
	return crawler.AwaitJob(ctx, d.deps.Jobs, id, 100*time.Millisecond)
}

// Cancel stops a job. A pending job is failed immediately and later skipped
// by the worker that dequeues it; a running job has its context cancelled
// and is finalized by its worker.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (crawler.Job, error) {
	job, err := d.deps.Jobs.GetJob(ctx, id)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job: %w", err)
	}
	switch job.State {
	case crawler.JobStateSuccess, crawler.JobStateFailure:
		return job, ErrJobFinished
	case crawler.JobStatePending:
		err := d.deps.Jobs.UpdateJobState(ctx, id, crawler.JobStateFailure, crawler.JobUpdate{
			At:    d.deps.Clock.Now(),
			Error: crawler.ErrCancelled.Error(),
		})
		if err == nil {
			d.logger.Info("pending job cancelled", zap.String("job_id", id))
			metrics.ObserveJob(string(job.Kind), string(crawler.JobStateFailure))
			return d.Get(ctx, id)
		}
		if !errors.Is(err, crawler.ErrInvalidTransition) {
			return crawler.Job{}, fmt.Errorf("cancel job: %w", err)
		}
		// A worker picked it up in between; fall through to the running path.
	}
	if !d.deps.Cancels.Cancel(id) {
		latest, err := d.Get(ctx, id)
		if err == nil && latest.State.Terminal() {
			return latest, ErrJobFinished
		}
		return latest, err
	}
	d.logger.Info("running job cancelled", zap.String("job_id", id))
	return d.Get(ctx, id)
}
