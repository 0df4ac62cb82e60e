package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/config"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

type fakeJobs struct {
	mu        sync.Mutex
	submitted []crawler.Job
	finish    func(crawler.Job) crawler.Job
}

func (f *fakeJobs) Submit(_ context.Context, kind crawler.JobKind, params crawler.JobParams) (crawler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := crawler.Job{ID: "job-1", Kind: kind, State: crawler.JobStatePending, Params: params}
	f.submitted = append(f.submitted, job)
	return job, nil
}

func (f *fakeJobs) Await(_ context.Context, id string) (crawler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.submitted {
		if job.ID == id {
			return f.finish(job), nil
		}
	}
	return crawler.Job{}, crawler.ErrJobNotFound
}

func (f *fakeJobs) Cancel(_ context.Context, id string) (crawler.Job, error) {
	return crawler.Job{ID: id, State: crawler.JobStateFailure, Error: "cancelled"}, nil
}

type fakeApp struct {
	jobs   *fakeJobs
	closed bool
}

func (a *fakeApp) Run(context.Context) error { return nil }

func (a *fakeApp) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	return done
}

func (a *fakeApp) Jobs() Jobs { return a.jobs }

func (a *fakeApp) Close(context.Context) error {
	a.closed = true
	return nil
}

// useFakeApp swaps newApp for the duration of a test. Tests using it cannot
// run in parallel.
func useFakeApp(t *testing.T, finish func(crawler.Job) crawler.Job) *fakeApp {
	t.Helper()
	app := &fakeApp{jobs: &fakeJobs{finish: finish}}
	prev := newApp
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })
	return app
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "logging:\n  level: error\ncrawler:\n  max_pages_default: 25\n  max_depth_default: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func succeedWith(t *testing.T, result any) func(crawler.Job) crawler.Job {
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	return func(job crawler.Job) crawler.Job {
		job.State = crawler.JobStateSuccess
		job.Result = raw
		return job
	}
}

func sampleReport() crawler.Report {
	return crawler.Report{
		JobID:      "job-1",
		RootURL:    "https://example.com/",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
		Counters:   crawler.Counters{PagesCrawled: 3},
	}
}

func TestCrawlAppliesDefaultsAndFlags(t *testing.T) {
	app := useFakeApp(t, succeedWith(t, sampleReport()))

	out, err := execute(t, "crawl", "Example.com", "--max-depth", "2", "--ignore-robots",
		"--exclude", "/admin/*", "--format", "json")
	require.NoError(t, err)
	require.True(t, app.closed)

	require.Len(t, app.jobs.submitted, 1)
	job := app.jobs.submitted[0]
	require.Equal(t, crawler.JobKindCrawl, job.Kind)
	p := job.Params.Crawl
	require.NotNil(t, p)
	require.Equal(t, "https://example.com/", p.RootURL)
	require.Equal(t, 25, p.MaxPages)
	require.Equal(t, 2, p.MaxDepth)
	require.False(t, p.Options.RespectRobots)
	require.Equal(t, []string{"/admin/*"}, p.Options.ExcludePatterns)

	var decoded crawler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, 3, decoded.Counters.PagesCrawled)
}

func TestCrawlWritesMarkdownByDefault(t *testing.T) {
	useFakeApp(t, succeedWith(t, sampleReport()))

	out, err := execute(t, "crawl", "https://example.com")
	require.NoError(t, err)
	require.Contains(t, out, "SEO crawl report: https://example.com/")
}

func TestCrawlFormatFromOutputExtension(t *testing.T) {
	useFakeApp(t, succeedWith(t, sampleReport()))
	path := filepath.Join(t.TempDir(), "report.xlsx")

	_, err := execute(t, "crawl", "https://example.com", "--output", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")
}

func TestCrawlRejectsBadInput(t *testing.T) {
	useFakeApp(t, succeedWith(t, sampleReport()))

	cases := map[string][]string{
		"xlsx to stdout": {"crawl", "https://example.com", "--format", "xlsx"},
		"unknown format": {"crawl", "https://example.com", "--format", "pdf"},
		"bad render":     {"crawl", "https://example.com", "--render", "sometimes"},
		"ftp root":       {"crawl", "ftp://example.com"},
		"missing root":   {"crawl"},
	}
	for name, args := range cases {
		_, err := execute(t, args...)
		require.Error(t, err, name)
	}
}

func TestCrawlFailureStillWritesPartialReport(t *testing.T) {
	report := sampleReport()
	report.Partial = true
	raw, err := json.Marshal(report)
	require.NoError(t, err)
	useFakeApp(t, func(job crawler.Job) crawler.Job {
		job.State = crawler.JobStateFailure
		job.Error = "job timeout exceeded"
		job.Result = raw
		return job
	})

	out, err := execute(t, "crawl", "https://example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "job timeout exceeded")
	require.Contains(t, out, "partial")
}

func TestKeywordGapCommand(t *testing.T) {
	app := useFakeApp(t, succeedWith(t, map[string]any{"domain_a": "a.com"}))

	out, err := execute(t, "keyword-gap", "https://www.A.com/", "b.com", "--keywords", "shoes,boots")
	require.NoError(t, err)

	p := app.jobs.submitted[0].Params.KeywordGap
	require.NotNil(t, p)
	require.Equal(t, "a.com", p.DomainA)
	require.Equal(t, "b.com", p.DomainB)
	require.Equal(t, []string{"shoes", "boots"}, p.Keywords)
	require.Contains(t, out, `"domain_a": "a.com"`)
}

func TestShareOfVoiceDeduplicatesDomains(t *testing.T) {
	app := useFakeApp(t, succeedWith(t, map[string]any{}))

	_, err := execute(t, "share-of-voice", "a.com", "www.a.com", "b.com")
	require.NoError(t, err)
	require.Equal(t, []string{"a.com", "b.com"}, app.jobs.submitted[0].Params.ShareOfVoice.Domains)
}

func TestOverviewReportsJobFailure(t *testing.T) {
	useFakeApp(t, func(job crawler.Job) crawler.Job {
		job.State = crawler.JobStateFailure
		job.Error = "keyword source unavailable"
		return job
	})

	_, err := execute(t, "overview", "example.com")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "keyword source unavailable"))
}

func TestCommandsRequireRuntime(t *testing.T) {
	t.Parallel()
	_, err := runtimeFrom(context.Background())
	require.Error(t, err)
}

func TestOptimizeCommand(t *testing.T) {
	app := useFakeApp(t, succeedWith(t, map[string]any{"score": 64}))

	out, err := execute(t, "optimize", "Example.com/shoes/", "--keywords", "running shoes,trail", "--render", "never")
	require.NoError(t, err)

	require.Len(t, app.jobs.submitted, 1)
	job := app.jobs.submitted[0]
	require.Equal(t, crawler.JobKindContentOptimizer, job.Kind)
	require.Equal(t, &crawler.ContentOptimizerParams{
		URL:            "https://example.com/shoes",
		TargetKeywords: []string{"running shoes", "trail"},
		Render:         crawler.RenderNever,
	}, job.Params.ContentOptimizer)
	require.Contains(t, out, `"score": 64`)

	_, err = execute(t, "optimize", "https://example.com", "--render", "sometimes")
	require.Error(t, err)
}

func TestBulkURLsCommandReadsFile(t *testing.T) {
	app := useFakeApp(t, succeedWith(t, map[string]any{"summary": map[string]int{"total_urls": 3}}))
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("# seeds\nhttps://b.com/x\n\nc.com\n"), 0o600))

	out, err := execute(t, "bulk-urls", "a.com", "--file", path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.com", "https://b.com/x", "https://c.com"},
		app.jobs.submitted[0].Params.BulkURLs.URLs)
	require.Contains(t, out, `"total_urls": 3`)

	_, err = execute(t, "bulk-urls")
	require.Error(t, err)
}
