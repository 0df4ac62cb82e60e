// Package ratelimit implements per-domain token buckets that keep a crawl
// polite toward the site being audited.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

// minRate is the floor a domain is slowed to after repeated throttling.
const minRate = rate.Limit(0.1)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the URL's host, respecting ctx.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := hostKey(rawURL)
	limiter := l.forDomain(domain)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

// SetCrawlDelay slows a domain to one request per delay, as requested by a
// robots.txt Crawl-delay directive. It never speeds a domain up.
func (l *Limiter) SetCrawlDelay(rawURL string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	limiter := l.forDomain(hostKey(rawURL))
	target := rate.Every(delay)
	if target < limiter.Limit() {
		limiter.SetLimit(target)
		limiter.SetBurst(1)
	}
}

// ReportResult halves the domain's rate when the server signals overload.
func (l *Limiter) ReportResult(rawURL string, statusCode int) {
	if statusCode != http.StatusTooManyRequests && statusCode != http.StatusServiceUnavailable {
		return
	}
	limiter := l.forDomain(hostKey(rawURL))
	current := limiter.Limit()
	if current == rate.Inf {
		limiter.SetLimit(rate.Limit(1))
		return
	}
	next := current / 2
	if next < minRate {
		next = minRate
	}
	limiter.SetLimit(next)
}

// Limit returns the current rate for the URL's host.
func (l *Limiter) Limit(rawURL string) rate.Limit {
	return l.forDomain(hostKey(rawURL)).Limit()
}

func (l *Limiter) forDomain(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	return limiter
}

func hostKey(rawURL string) string {
	if host := crawler.Hostname(rawURL); host != "" {
		return host
	}
	return "unknown"
}
