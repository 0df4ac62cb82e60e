package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/clock/system"
	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/inspect"
	"github.com/JakeFAU/seo-site-crawler/internal/keywords"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/progress"
	pubmemory "github.com/JakeFAU/seo-site-crawler/internal/publisher/memory"
	"github.com/JakeFAU/seo-site-crawler/internal/storage/memory"
)

const jobID = "01890a5d-ac96-774b-bcce-b302099a8057"

const rankingsYAML = `
domains:
  a.com:
    - {keyword: seo tools, position: 3, search_volume: 1000}
    - {keyword: crawler, position: 7, search_volume: 500}
  b.com:
    - {keyword: crawler, position: 2, search_volume: 500}
    - {keyword: site audit, position: 4, search_volume: 2000}
`

type fakeRunner struct {
	report crawler.Report
	err    error
	block  bool
	panics bool
	calls  int
	mu     sync.Mutex
}

func (f *fakeRunner) Run(ctx context.Context, job crawler.Job) (crawler.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	if f.block {
		<-ctx.Done()
		return crawler.Report{JobID: job.ID, RootURL: job.Params.Crawl.RootURL, Partial: true}, crawler.ErrCancelled
	}
	return f.report, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type failingSource struct{}

func (failingSource) FetchRankings(context.Context, string, []string) (competitive.Rankings, error) {
	return nil, errors.New("upstream down")
}

type fakeInspector struct {
	mu       sync.Mutex
	review   analyzer.Optimization
	bulk     inspect.BulkReport
	err      error
	optimize []crawler.ContentOptimizerParams
	checks   []crawler.BulkURLParams
}

func (f *fakeInspector) OptimizeContent(_ context.Context, _ string, p crawler.ContentOptimizerParams) (analyzer.Optimization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimize = append(f.optimize, p)
	return f.review, f.err
}

func (f *fakeInspector) CheckURLs(_ context.Context, _ string, p crawler.BulkURLParams) (inspect.BulkReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, p)
	return f.bulk, f.err
}

type harness struct {
	spans    *tracetest.SpanRecorder
	inspect  *fakeInspector
	jobs     *memory.JobStore
	runner   *fakeRunner
	events   *recordingEmitter
	pub      *pubmemory.Publisher
	cancels  *Cancels
	worker   *Worker
	clock    *system.Fixed
	keywords keywords.Source
}

func newHarness(t *testing.T, source keywords.Source) *harness {
	t.Helper()
	metrics.Init()
	if source == nil {
		static, err := keywords.ParseStatic(strings.NewReader(rankingsYAML))
		require.NoError(t, err)
		source = static
	}
	h := &harness{
		spans:    tracetest.NewSpanRecorder(),
		jobs:     memory.NewJobStore(),
		inspect:  &fakeInspector{},
		runner:   &fakeRunner{},
		events:   &recordingEmitter{},
		pub:      pubmemory.New(),
		cancels:  NewCancels(),
		clock:    system.NewFixed(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		keywords: source,
	}
	h.worker = New(1, Deps{
		Jobs:      h.jobs,
		Crawls:    h.runner,
		Inspector: h.inspect,
		Keywords:  h.keywords,
		Publisher: h.pub,
		Progress:  h.events,
		Cancels:   h.cancels,
		Clock:     h.clock,
		Tracer:    sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans)).Tracer("test"),
	}, Config{Topic: "jobs-done", TopKeywords: 5})
	return h
}

func (h *harness) submit(t *testing.T, kind crawler.JobKind, params crawler.JobParams) crawler.QueueItem {
	t.Helper()
	require.NoError(t, h.jobs.CreateJob(context.Background(), crawler.Job{
		ID:        jobID,
		Kind:      kind,
		State:     crawler.JobStatePending,
		CreatedAt: h.clock.Now(),
		Params:    params,
	}))
	return crawler.QueueItem{JobID: jobID, Kind: kind}
}

func crawlParams() crawler.JobParams {
	return crawler.JobParams{Crawl: &crawler.CrawlParams{RootURL: "https://example.com/", MaxPages: 5}}
}

func TestProcessCrawlSuccess(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.runner.report = crawler.Report{
		JobID:   jobID,
		RootURL: "https://example.com/",
		Pages:   []crawler.PageResult{{Page: crawler.PageRecord{URL: "https://example.com/", StatusCode: 200}}},
	}
	item := h.submit(t, crawler.JobKindCrawl, crawlParams())

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)
	require.Empty(t, job.Error)

	var report crawler.Report
	require.NoError(t, json.Unmarshal(job.Result, &report))
	require.Len(t, report.Pages, 1)

	require.Equal(t, []progress.Stage{progress.StageJobStart, progress.StageJobDone}, h.events.stages())
	for _, evt := range h.events.events {
		require.NoError(t, evt.Validate())
		require.Equal(t, "example.com", evt.Site)
	}

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "jobs-done", msgs[0].Topic)
	done, ok := msgs[0].Payload.(Completion)
	require.True(t, ok)
	require.Equal(t, crawler.JobStateSuccess, done.State)
	require.Zero(t, h.cancels.Running())

	spans := h.spans.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "job.crawl", spans[0].Name())
	require.NotEqual(t, codes.Error, spans[0].Status().Code)
}

func TestProcessBudgetExceededKeepsPartialReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.runner.report = crawler.Report{JobID: jobID, RootURL: "https://example.com/", Partial: true}
	h.runner.err = crawler.ErrBudgetExceeded
	item := h.submit(t, crawler.JobKindCrawl, crawlParams())

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Equal(t, "job budget exceeded", job.Error)
	require.Contains(t, string(job.Result), `"partial":true`)
	require.Equal(t, []progress.Stage{progress.StageJobStart, progress.StageJobError}, h.events.stages())
}

func TestProcessCancelRunningJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.runner.block = true
	item := h.submit(t, crawler.JobKindCrawl, crawlParams())

	done := make(chan struct{})
	go func() {
		h.worker.Process(context.Background(), item)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.cancels.Running() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, h.cancels.Cancel(jobID))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish after cancel")
	}
	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Equal(t, "Cancelled", job.Error)
	require.False(t, h.cancels.Cancel(jobID))
}

func TestProcessRecoversPanics(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.runner.panics = true
	item := h.submit(t, crawler.JobKindCrawl, crawlParams())

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Contains(t, job.Error, "job fatal")

	spans := h.spans.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestProcessSkipsFinishedJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	item := h.submit(t, crawler.JobKindCrawl, crawlParams())
	require.NoError(t, h.jobs.UpdateJobState(context.Background(), jobID, crawler.JobStateFailure, crawler.JobUpdate{
		Error: "Cancelled",
	}))

	h.worker.Process(context.Background(), item)

	require.Zero(t, h.runner.calls)
	require.Empty(t, h.pub.Messages())
}

func TestProcessKeywordGap(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	item := h.submit(t, crawler.JobKindKeywordGap, crawler.JobParams{
		KeywordGap: &crawler.KeywordGapParams{DomainA: "a.com", DomainB: "b.com"},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	var gap competitive.GapResult
	require.NoError(t, json.Unmarshal(job.Result, &gap))
	require.Len(t, gap.OnlyInA, 1)
	require.Equal(t, "seo tools", gap.OnlyInA[0].Keyword)
	require.Len(t, gap.Common, 1)
	require.Len(t, gap.Opportunities, 1)
	require.Equal(t, "site audit", gap.Opportunities[0].Keyword)
	require.Empty(t, h.events.stages(), "competitive jobs emit no crawl progress")
}

func TestProcessShareOfVoice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	item := h.submit(t, crawler.JobKindShareOfVoice, crawler.JobParams{
		ShareOfVoice: &crawler.ShareOfVoiceParams{Domains: []string{"a.com", "b.com", "c.com"}},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	var sov competitive.ShareOfVoiceResult
	require.NoError(t, json.Unmarshal(job.Result, &sov))
	require.Len(t, sov.Domains, 3)
	var total float64
	for _, d := range sov.Domains {
		total += d.Share
	}
	require.InDelta(t, 100, total, 0.05)
}

func TestProcessOverview(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	item := h.submit(t, crawler.JobKindCompetitorOverview, crawler.JobParams{
		Overview: &crawler.OverviewParams{Domain: "b.com"},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	require.Contains(t, string(job.Result), "site audit")
}

func TestProcessKeywordSourceFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, failingSource{})
	item := h.submit(t, crawler.JobKindCompetitorOverview, crawler.JobParams{
		Overview: &crawler.OverviewParams{Domain: "b.com"},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Contains(t, job.Error, "upstream down")
}

func TestProcessMissingParams(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	item := h.submit(t, crawler.JobKindKeywordGap, crawler.JobParams{})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Equal(t, "keyword gap job has no parameters", job.Error)
}

func TestProcessContentOptimizer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.inspect.review = analyzer.Optimization{URL: "https://example.com/shoes", Score: 72}
	params := crawler.ContentOptimizerParams{URL: "https://example.com/shoes", TargetKeywords: []string{"shoes"}}
	item := h.submit(t, crawler.JobKindContentOptimizer, crawler.JobParams{ContentOptimizer: &params})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	var got analyzer.Optimization
	require.NoError(t, json.Unmarshal(job.Result, &got))
	require.Equal(t, 72, got.Score)
	require.Equal(t, []crawler.ContentOptimizerParams{params}, h.inspect.optimize)
	require.Empty(t, h.events.stages())
}

func TestProcessBulkURLs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.inspect.bulk = inspect.BulkReport{
		Results: []inspect.URLResult{{URL: "https://example.com/", StatusCode: 200, Indexable: true}},
		Summary: inspect.BulkSummary{TotalURLs: 1, Status200: 1},
	}
	item := h.submit(t, crawler.JobKindBulkURLs, crawler.JobParams{
		BulkURLs: &crawler.BulkURLParams{URLs: []string{"https://example.com/"}},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, job.State)
	var got inspect.BulkReport
	require.NoError(t, json.Unmarshal(job.Result, &got))
	require.Equal(t, 1, got.Summary.Status200)
	require.Len(t, h.inspect.checks, 1)
}

func TestProcessInspectorFailureStoresNoResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.inspect.err = errors.New("fetch https://example.com/: connection refused")
	item := h.submit(t, crawler.JobKindBulkURLs, crawler.JobParams{
		BulkURLs: &crawler.BulkURLParams{URLs: []string{"https://example.com/"}},
	})

	h.worker.Process(context.Background(), item)

	job, err := h.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateFailure, job.State)
	require.Contains(t, job.Error, "connection refused")
	require.Empty(t, job.Result)

	h2 := newHarness(t, nil)
	item = h2.submit(t, crawler.JobKindContentOptimizer, crawler.JobParams{})
	h2.worker.Process(context.Background(), item)
	job, err = h2.jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, "content optimizer job has no parameters", job.Error)
}

func TestFailureReason(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		err  error
		want string
	}{
		"cancelled":      {err: crawler.ErrCancelled, want: "Cancelled"},
		"ctx canceled":   {err: context.Canceled, want: "Cancelled"},
		"budget":         {err: crawler.ErrBudgetExceeded, want: "job budget exceeded"},
		"deadline":       {err: context.DeadlineExceeded, want: "job budget exceeded"},
		"wrapped budget": {err: errors.Join(errors.New("x"), crawler.ErrBudgetExceeded), want: "job budget exceeded"},
		"other":          {err: errors.New("disk full"), want: "disk full"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, FailureReason(tc.err))
		})
	}
}
