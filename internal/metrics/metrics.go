// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	issuesTotal                *prometheus.CounterVec
	fetchRetriesTotal          prometheus.Counter
	headlessRendersTotal       *prometheus.CounterVec
	analyzerFailuresTotal      *prometheus.CounterVec
	frontierDroppedTotal       *prometheus.CounterVec
	progressEventsTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status class.",
			},
			[]string{"site", "status"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_jobs_total",
				Help: "Total number of jobs finished, labeled by kind and terminal state.",
			},
			[]string{"kind", "state"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seo_crawler_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seo_crawler_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		issuesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_issues_total",
				Help: "Issues raised by analyzers, labeled by category and severity.",
			},
			[]string{"category", "severity"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seo_crawler_fetch_retries_total",
				Help: "Fetch attempts repeated after a transient network failure.",
			},
		)

		headlessRendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_headless_renders_total",
				Help: "Headless renders, labeled by what triggered them.",
			},
			[]string{"reason"},
		)

		analyzerFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_analyzer_failures_total",
				Help: "Analyzer errors and panics, labeled by analyzer.",
			},
			[]string{"analyzer"},
		)

		frontierDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_frontier_dropped_total",
				Help: "URLs rejected by the frontier, labeled by reason.",
			},
			[]string{"reason"},
		)

		progressEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seo_crawler_progress_events_total",
				Help: "Progress events observed by the metrics sink, labeled by stage.",
			},
			[]string{"stage"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass buckets an HTTP status for low-cardinality labels.
func StatusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one crawled page.
func ObservePage(site string, statusCode int, bytesFetched int64) {
	sanitizedSite := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitizedSite, StatusClass(statusCode)).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given kind and state.
func ObserveJob(kind, state string) {
	jobsTotal.WithLabelValues(kind, state).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveIssue counts one issue.
func ObserveIssue(category, severity string) {
	issuesTotal.WithLabelValues(category, severity).Inc()
}

// ObserveFetchRetry counts one retried fetch attempt.
func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

// ObserveHeadlessRender counts a headless render and its trigger.
func ObserveHeadlessRender(reason string) {
	headlessRendersTotal.WithLabelValues(reason).Inc()
}

// ObserveAnalyzerFailure counts one isolated analyzer failure.
func ObserveAnalyzerFailure(analyzer string) {
	analyzerFailuresTotal.WithLabelValues(analyzer).Inc()
}

// ObserveFrontierDrops adds frontier rejections by reason.
func ObserveFrontierDrops(reason string, n int) {
	if n <= 0 {
		return
	}
	frontierDroppedTotal.WithLabelValues(reason).Add(float64(n))
}

// ObserveProgressEvent counts one progress event by stage.
func ObserveProgressEvent(stage string) {
	progressEventsTotal.WithLabelValues(stage).Inc()
}
