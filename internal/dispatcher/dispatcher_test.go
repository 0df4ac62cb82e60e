package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/clock/system"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	queuememory "github.com/JakeFAU/seo-site-crawler/internal/queue/memory"
	"github.com/JakeFAU/seo-site-crawler/internal/storage/memory"
	"github.com/JakeFAU/seo-site-crawler/internal/worker"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("01890a5d-ac96-774b-bcce-%012d", s.n), nil
}

type blockingRunner struct{ started chan string }

func (b blockingRunner) Run(ctx context.Context, job crawler.Job) (crawler.Report, error) {
	b.started <- job.ID
	<-ctx.Done()
	return crawler.Report{JobID: job.ID, RootURL: job.Params.Crawl.RootURL, Partial: true}, crawler.ErrCancelled
}

type fixture struct {
	jobs     *memory.JobStore
	queue    *queuememory.Queue
	cancels  *worker.Cancels
	dispatch *Dispatcher
}

func newFixture(t *testing.T, runner worker.CrawlRunner, workers int) *fixture {
	t.Helper()
	metrics.Init()
	f := &fixture{
		jobs:    memory.NewJobStore(),
		queue:   queuememory.NewQueue(8),
		cancels: worker.NewCancels(),
	}
	clk := system.New()
	pool := make([]*worker.Worker, 0, workers)
	for i := range workers {
		pool = append(pool, worker.New(i, worker.Deps{
			Queue:   f.queue,
			Jobs:    f.jobs,
			Crawls:  runner,
			Cancels: f.cancels,
			Clock:   clk,
		}, worker.Config{}))
	}
	f.dispatch = New(Deps{
		Queue:   f.queue,
		Jobs:    f.jobs,
		IDs:     &seqIDs{},
		Clock:   clk,
		Cancels: f.cancels,
	}, pool)
	return f
}

func crawlParams() crawler.JobParams {
	return crawler.JobParams{Crawl: &crawler.CrawlParams{RootURL: "https://example.com/", MaxPages: 3}}
}

func TestSubmitRegistersPendingJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, 0)

	job, err := f.dispatch.Submit(context.Background(), crawler.JobKindCrawl, crawlParams())
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatePending, job.State)
	require.Equal(t, 1, f.queue.Len())

	stored, err := f.dispatch.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobKindCrawl, stored.Kind)
	require.Equal(t, "https://example.com/", stored.Params.Crawl.RootURL)
}

func TestSubmitFailsJobWhenQueueClosed(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, 0)
	f.queue.Close()

	_, err := f.dispatch.Submit(context.Background(), crawler.JobKindCrawl, crawlParams())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)

	jobs, err := f.dispatch.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, crawler.JobStateFailure, jobs[0].State)
}

func TestCancelPendingJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, 0)
	job, err := f.dispatch.Submit(context.Background(), crawler.JobKindCrawl, crawlParams())
	require.NoError(t, err)

	cancelled, err := f.dispatch.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, cancelled.State)
	require.Equal(t, "Cancelled", cancelled.Error)

	_, err = f.dispatch.Cancel(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrJobFinished)
}

func TestCancelRunningJobEndsPromptly(t *testing.T) {
	t.Parallel()
	runner := blockingRunner{started: make(chan string, 1)}
	f := newFixture(t, runner, 1)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go f.dispatch.Run(ctx)

	job, err := f.dispatch.Submit(ctx, crawler.JobKindCrawl, crawlParams())
	require.NoError(t, err)
	select {
	case id := <-runner.started:
		require.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	_, err = f.dispatch.Cancel(ctx, job.ID)
	require.NoError(t, err)

	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
	defer cancelWait()
	final, err := f.dispatch.Await(waitCtx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, final.State)
	require.Equal(t, "Cancelled", final.Error)
}

// runningHookStore runs onRunning right after a RUNNING transition commits.
type runningHookStore struct {
	*memory.JobStore
	onRunning func(id string)
}

func (s *runningHookStore) UpdateJobState(ctx context.Context, id string, state crawler.JobState, update crawler.JobUpdate) error {
	if err := s.JobStore.UpdateJobState(ctx, id, state, update); err != nil {
		return err
	}
	if state == crawler.JobStateRunning && s.onRunning != nil {
		s.onRunning(id)
	}
	return nil
}

type instantRunner struct{}

func (instantRunner) Run(_ context.Context, job crawler.Job) (crawler.Report, error) {
	return crawler.Report{JobID: job.ID, RootURL: job.Params.Crawl.RootURL}, nil
}

func TestCancelJustAfterRunningTransitionIsNotLost(t *testing.T) {
	t.Parallel()
	metrics.Init()
	ctx := context.Background()
	store := &runningHookStore{JobStore: memory.NewJobStore()}
	queue := queuememory.NewQueue(1)
	cancels := worker.NewCancels()
	clk := system.New()
	w := worker.New(0, worker.Deps{
		Queue:   queue,
		Jobs:    store,
		Crawls:  instantRunner{},
		Cancels: cancels,
		Clock:   clk,
	}, worker.Config{})
	d := New(Deps{Queue: queue, Jobs: store, IDs: &seqIDs{}, Clock: clk, Cancels: cancels}, []*worker.Worker{w})

	var (
		seen      crawler.Job
		cancelErr error
	)
	store.onRunning = func(id string) { seen, cancelErr = d.Cancel(ctx, id) }

	job, err := d.Submit(ctx, crawler.JobKindCrawl, crawlParams())
	require.NoError(t, err)
	item, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	w.Process(ctx, item)

	require.NoError(t, cancelErr)
	require.Equal(t, crawler.JobStateRunning, seen.State)

	final, err := d.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, final.State)
	require.Equal(t, "Cancelled", final.Error)
	require.Zero(t, cancels.Running())
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, 0)

	_, err := f.dispatch.Cancel(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatch.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestEnqueueWrapsQueueErrors(t *testing.T) {
	t.Parallel()
	d := New(Deps{Queue: errorQueue{err: errors.New("boom")}}, nil)

	err := d.Enqueue(context.Background(), crawler.QueueItem{JobID: "job"})
	require.EqualError(t, err, "queue enqueue: boom")
}

type errorQueue struct{ err error }

func (q errorQueue) Enqueue(context.Context, crawler.QueueItem) error { return q.err }

func (q errorQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	<-ctx.Done()
	return crawler.QueueItem{}, ctx.Err()
}
