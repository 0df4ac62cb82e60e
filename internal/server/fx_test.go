package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/config"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.Workers = 2
	cfg.Crawler.Concurrency = 2
	cfg.Crawler.DomainRPS = 0
	cfg.HTTP.TimeoutSeconds = 5
	cfg.HTTP.MaxRetries = 0
	cfg.Progress.LogEnabled = false
	cfg.Keywords.Source = "simulated"
	return cfg
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!doctype html><html lang="en"><head><title>Home of the test site</title></head>
<body><h1>Welcome</h1><p>Some words about the site.</p>
<a href="/about">About</a> <a href="/gone">Gone</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>About</title></head><body><a href="/">Home</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildServesProbes(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestBuildRejectsUnknownPerformanceProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Performance.Provider = "lighthouse-cloud"
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "performance scorer")
}

func TestCrawlEndToEnd(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t)
	cfg.Registry.Backend = "sqlite"
	cfg.Registry.SQLite.Path = t.TempDir() + "/jobs.db"

	app, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := app.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close(context.Background())
	})

	job, err := app.Jobs().Submit(ctx, crawler.JobKindCrawl, crawler.JobParams{Crawl: &crawler.CrawlParams{
		RootURL:  site.URL + "/",
		MaxPages: 10,
		MaxDepth: 3,
		Options: crawler.CrawlOptions{
			RespectRobots:  true,
			IncludeSitemap: true,
			Render:         crawler.RenderNever,
		},
	}})
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	finished, err := app.Jobs().Await(waitCtx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, finished.State, finished.Error)

	var report crawler.Report
	require.NoError(t, json.Unmarshal(finished.Result, &report))
	require.Len(t, report.Pages, 3)
	require.False(t, report.Partial)
	require.Equal(t, 1, countStatus(report, http.StatusNotFound))
}

func TestCompetitiveJobEndToEnd(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := app.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
		_ = app.Close(context.Background())
	})

	job, err := app.Jobs().Submit(ctx, crawler.JobKindShareOfVoice, crawler.JobParams{
		ShareOfVoice: &crawler.ShareOfVoiceParams{Domains: []string{"a.com", "b.com"}},
	})
	require.NoError(t, err)
	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	finished, err := app.Jobs().Await(waitCtx, job.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, finished.State, finished.Error)
	require.NotEmpty(t, finished.Result)
}

func countStatus(report crawler.Report, code int) int {
	n := 0
	for _, p := range report.Pages {
		if p.Page.StatusCode == code {
			n++
		}
	}
	return n
}
