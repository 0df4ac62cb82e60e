// Package inspect runs the single-request tools that sit beside full crawls:
// a content review of one page and a status sweep over a list of URLs.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
)

// MaxBulkURLs caps one bulk check; longer lists are truncated.
const MaxBulkURLs = 100

// Config controls Inspector behavior.
type Config struct {
	// Concurrency bounds simultaneous fetches of a bulk check. Defaults to 10.
	Concurrency int
	// URLTimeout bounds each bulk fetch. Defaults to 10s.
	URLTimeout time.Duration
	Weights    analyzer.ContentWeights
}

// Inspector fetches pages for the content optimizer and the bulk checker.
type Inspector struct {
	cfg    Config
	static crawler.Fetcher
	render crawler.Fetcher
	logger *zap.Logger
}

// New builds an Inspector. Bulk checks always use static; the optimizer uses
// render, falling back to static when render is nil.
func New(cfg Config, static, render crawler.Fetcher, logger *zap.Logger) (*Inspector, error) {
	if static == nil {
		return nil, errors.New("inspect: static fetcher is required")
	}
	if render == nil {
		render = static
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.URLTimeout <= 0 {
		cfg.URLTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{cfg: cfg, static: static, render: render, logger: logger.Named("inspect")}, nil
}

// OptimizeContent fetches one page and reviews its content against the
// target keywords.
func (i *Inspector) OptimizeContent(ctx context.Context, jobID string, p crawler.ContentOptimizerParams) (analyzer.Optimization, error) {
	target, err := crawler.NormalizeHTTPURL(p.URL)
	if err != nil {
		return analyzer.Optimization{}, fmt.Errorf("%w: %v", crawler.ErrJobFatal, err)
	}
	mode := p.Render
	if mode == "" {
		mode = crawler.RenderAuto
	}
	resp, err := i.render.Fetch(ctx, crawler.FetchRequest{JobID: jobID, URL: target, Render: mode})
	if err != nil {
		if ctx.Err() != nil {
			return analyzer.Optimization{}, crawler.ErrCancelled
		}
		return analyzer.Optimization{}, err
	}
	page, err := extract.Page(resp, 0, sameHost(crawler.Hostname(target)))
	if err != nil {
		return analyzer.Optimization{}, fmt.Errorf("extract %s: %w", target, err)
	}
	out, err := analyzer.Optimize(&page, p.TargetKeywords, i.cfg.Weights)
	if err != nil {
		return analyzer.Optimization{}, err
	}
	i.logger.Info("content review finished",
		zap.String("job_id", jobID),
		zap.String("url", target),
		zap.Int("score", out.Score),
		zap.Int("suggestions", len(out.Suggestions)))
	return out, nil
}

// URLResult is the outcome of checking one URL. Redirects are followed;
// RedirectURL is the final URL when it differs from the requested one.
type URLResult struct {
	URL             string   `json:"url"`
	StatusCode      int      `json:"status_code"`
	RedirectURL     string   `json:"redirect_url,omitempty"`
	RedirectChain   []string `json:"redirect_chain,omitempty"`
	Title           string   `json:"title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	H1              string   `json:"h1,omitempty"`
	Indexable       bool     `json:"indexable"`
	Issues          []string `json:"issues"`
	ResponseTimeMS  float64  `json:"response_time_ms"`
	TimedOut        bool     `json:"timed_out,omitempty"`
}

// BulkSummary aggregates a bulk check.
type BulkSummary struct {
	TotalURLs         int     `json:"total_urls"`
	Status200         int     `json:"status_200"`
	Redirects         int     `json:"redirects"`
	Errors            int     `json:"errors"`
	Timeouts          int     `json:"timeouts"`
	NotIndexable      int     `json:"not_indexable"`
	MissingTitles     int     `json:"missing_titles"`
	MissingMeta       int     `json:"missing_meta"`
	MissingH1         int     `json:"missing_h1"`
	AvgResponseTimeMS float64 `json:"avg_response_time_ms"`
}

// BulkReport is the result of a bulk URL check, in request order.
type BulkReport struct {
	Results   []URLResult `json:"results"`
	Summary   BulkSummary `json:"summary"`
	Truncated int         `json:"truncated,omitempty"`
}

// CheckURLs fetches every URL without rendering and reports status,
// redirect, metadata and indexability per URL.
func (i *Inspector) CheckURLs(ctx context.Context, jobID string, p crawler.BulkURLParams) (BulkReport, error) {
	urls := p.URLs
	var report BulkReport
	if len(urls) > MaxBulkURLs {
		report.Truncated = len(urls) - MaxBulkURLs
		urls = urls[:MaxBulkURLs]
	}
	if len(urls) == 0 {
		return BulkReport{}, fmt.Errorf("%w: no URLs to check", crawler.ErrJobFatal)
	}

	report.Results = make([]URLResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for n, raw := range urls {
		g.Go(func() error {
			report.Results[n] = i.checkURL(gctx, jobID, raw)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return BulkReport{}, crawler.ErrCancelled
	}

	report.Summary = summarize(report.Results)
	i.logger.Info("bulk url check finished",
		zap.String("job_id", jobID),
		zap.Int("urls", report.Summary.TotalURLs),
		zap.Int("errors", report.Summary.Errors),
		zap.Int("timeouts", report.Summary.Timeouts))
	return report, nil
}

func (i *Inspector) checkURL(ctx context.Context, jobID, raw string) URLResult {
	res := URLResult{URL: raw, Issues: []string{}}
	target, err := crawler.NormalizeHTTPURL(raw)
	if err != nil {
		res.Issues = append(res.Issues, "Invalid URL")
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, i.cfg.URLTimeout)
	defer cancel()
	resp, err := i.static.Fetch(ctx, crawler.FetchRequest{JobID: jobID, URL: target, Render: crawler.RenderNever})
	if err != nil {
		if isTimeout(err) {
			res.TimedOut = true
			res.Issues = append(res.Issues, "Request timeout")
		} else {
			res.Issues = append(res.Issues, err.Error())
		}
		return res
	}

	res.StatusCode = resp.StatusCode
	res.ResponseTimeMS = math.Round(float64(resp.Duration.Microseconds())/10) / 100
	page, err := extract.Page(resp, 0, sameHost(crawler.Hostname(target)))
	if err != nil {
		i.logger.Debug("bulk check extract failed", zap.String("url", target), zap.Error(err))
		page = crawler.PageRecord{URL: target, StatusCode: resp.StatusCode, Headers: resp.Headers}
	}
	if page.RedirectTarget != "" {
		res.RedirectURL = page.RedirectTarget
		res.RedirectChain = resp.RedirectChain
		res.Issues = append(res.Issues, "Redirect to "+page.RedirectTarget)
	}
	if resp.StatusCode >= 400 {
		res.Issues = append(res.Issues, fmt.Sprintf("HTTP %d error", resp.StatusCode))
	}
	if resp.StatusCode == 200 {
		res.Title = page.Title
		res.MetaDescription = page.MetaDescription
		if len(page.H1) > 0 {
			res.H1 = page.H1[0]
		}
		if res.Title == "" {
			res.Issues = append(res.Issues, "Missing title tag")
		}
		if res.MetaDescription == "" {
			res.Issues = append(res.Issues, "Missing meta description")
		}
		if res.H1 == "" {
			res.Issues = append(res.Issues, "Missing H1 tag")
		}
	}
	res.Indexable = analyzer.Indexable(&page)
	if !res.Indexable && resp.StatusCode < 400 {
		res.Issues = append(res.Issues, "Not indexable (noindex)")
	}
	return res
}

func summarize(results []URLResult) BulkSummary {
	s := BulkSummary{TotalURLs: len(results)}
	var total float64
	timed := 0
	for _, r := range results {
		switch {
		case r.TimedOut:
			s.Timeouts++
		case r.StatusCode == 0 || r.StatusCode >= 400:
			s.Errors++
		}
		if r.StatusCode == 200 {
			s.Status200++
			if r.Title == "" {
				s.MissingTitles++
			}
			if r.MetaDescription == "" {
				s.MissingMeta++
			}
			if r.H1 == "" {
				s.MissingH1++
			}
		}
		if r.RedirectURL != "" {
			s.Redirects++
		}
		if !r.Indexable {
			s.NotIndexable++
		}
		if r.ResponseTimeMS > 0 {
			total += r.ResponseTimeMS
			timed++
		}
	}
	if timed > 0 {
		s.AvgResponseTimeMS = math.Round(total/float64(timed)*100) / 100
	}
	return s
}

// sameHost counts links to the checked page's own host as internal.
type sameHost string

func (h sameHost) InScope(rawURL string) bool { return crawler.Hostname(rawURL) == string(h) }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
