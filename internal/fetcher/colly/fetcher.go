// Package collyfetcher implements the static Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/policy/ratelimit"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using a fresh Colly collector per
// attempt over one shared, pooled transport.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	retry     crawler.RetryPolicy
	limiter   *ratelimit.Limiter
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. retry and limiter may be nil.
func New(cfg Config, retry crawler.RetryPolicy, limiter *ratelimit.Limiter, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if retry == nil {
		retry = crawler.NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		retry:     retry,
		limiter:   limiter,
		logger:    logger.Named("colly_fetcher"),
		sleep:     sleepWithContext,
	}
}

// RobotsClient returns an HTTP client for robots.txt lookups that shares the
// fetcher's connection pool and tolerates flaky robots endpoints.
func (f *Fetcher) RobotsClient() *http.Client {
	return &http.Client{
		Timeout: f.cfg.Timeout,
		Transport: &robotsTransport{
			base:    f.transport,
			backoff: robotsRetryBackoff,
			logger:  f.logger,
		},
	}
}

// Limiter exposes the per-domain limiter so robots crawl delays can tune it.
func (f *Fetcher) Limiter() *ratelimit.Limiter {
	return f.limiter
}

// Fetch performs a GET with retries on transient network failures. HTTP
// error statuses are valid results and are never retried.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, request.URL); err != nil {
				return crawler.FetchResponse{}, &crawler.FetchError{URL: request.URL, Attempts: attempt - 1, Err: err}
			}
		}

		resp, err := f.fetchOnce(ctx, request)
		if err == nil {
			resp.Attempts = attempt
			if f.limiter != nil {
				f.limiter.ReportResult(request.URL, resp.StatusCode)
			}
			return resp, nil
		}
		if ctx.Err() != nil || !f.retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, &crawler.FetchError{URL: request.URL, Attempts: attempt, Err: err}
		}

		metrics.ObserveFetchRetry()
		delay := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := f.sleep(ctx, delay); serr != nil {
			return crawler.FetchResponse{}, &crawler.FetchError{URL: request.URL, Attempts: attempt, Err: err}
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
		chain    []string
	)
	start := time.Now()
	collector := f.buildCollector(ctx, &chain)
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := collector.Visit(request.URL); err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly visit: %w", err)
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly response: %w", fetchErr)
	}
	if result.StatusCode == 0 {
		return crawler.FetchResponse{}, errors.New("colly returned no response")
	}
	result.URL = request.URL
	result.RedirectChain = chain
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, chain *[]string) *colly.Collector {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	if f.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = f.cfg.MaxBodyBytes
	}
	// Robots rules are enforced by the frontier before a URL is queued.
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(f.transport)
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.SetRedirectHandler(f.redirectHandler(chain))
	return collector
}

// redirectHandler records every hop and stops on repeats or overflow.
func (f *Fetcher) redirectHandler(chain *[]string) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(*chain) == 0 && len(via) > 0 {
			*chain = append(*chain, via[0].URL.String())
		}
		next := req.URL.String()
		for _, prev := range via {
			if sameURL(prev.URL.String(), next) {
				return fmt.Errorf("%w: %s", crawler.ErrRedirectLoop, next)
			}
		}
		*chain = append(*chain, next)
		if len(via) > f.cfg.MaxRedirects {
			return fmt.Errorf("%w: limit %d", crawler.ErrTooManyRedirects, f.cfg.MaxRedirects)
		}
		return nil
	}
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			FinalURL:     r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      headers,
			Body:         append([]byte(nil), r.Body...),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func sameURL(a, b string) bool {
	na, errA := crawler.NormalizeURL(a)
	nb, errB := crawler.NormalizeURL(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return na == nb
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
