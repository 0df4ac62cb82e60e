package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

const defaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// PageSpeed queries the PageSpeed Insights v5 API.
type PageSpeed struct {
	endpoint string
	apiKey   string
	strategy string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewPageSpeed builds a client. A nil httpClient gets one with cfg.Timeout.
func NewPageSpeed(cfg Config, httpClient *http.Client) *PageSpeed {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "mobile"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &PageSpeed{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		strategy: cfg.Strategy,
		client:   httpClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type psiAudit struct {
	NumericValue *float64 `json:"numericValue"`
}

type psiResponse struct {
	LighthouseResult struct {
		Audits     map[string]psiAudit `json:"audits"`
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Score fetches a lab run for pageURL. LCP, INP and TTFB are milliseconds,
// CLS is unitless and Score is 0-100.
func (p *PageSpeed) Score(ctx context.Context, pageURL string) (crawler.Performance, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return crawler.Performance{}, fmt.Errorf("pagespeed rate limit: %w", err)
	}
	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("key", p.apiKey)
	q.Set("category", "PERFORMANCE")
	q.Set("strategy", p.strategy)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return crawler.Performance{}, fmt.Errorf("build pagespeed request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return crawler.Performance{}, fmt.Errorf("pagespeed request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body psiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&body); err != nil {
		return crawler.Performance{}, fmt.Errorf("decode pagespeed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if body.Error != nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return crawler.Performance{}, fmt.Errorf("pagespeed returned %d: %s", resp.StatusCode, msg)
	}

	audits := body.LighthouseResult.Audits
	perf := crawler.Performance{
		Available: true,
		LCP:       metric(audits, "largest-contentful-paint"),
		CLS:       metric(audits, "cumulative-layout-shift"),
		INP:       metric(audits, "interaction-to-next-paint"),
		TTFB:      metric(audits, "server-response-time"),
	}
	if s := body.LighthouseResult.Categories.Performance.Score; s != nil {
		perf.Score = math.Round(*s * 100)
	}
	return perf, nil
}

func metric(audits map[string]psiAudit, key string) float64 {
	a, ok := audits[key]
	if !ok || a.NumericValue == nil {
		return 0
	}
	return *a.NumericValue
}
