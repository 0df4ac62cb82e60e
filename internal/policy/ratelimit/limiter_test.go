package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

func TestLimiter_Wait(t *testing.T) {
	metrics.Init()
	l := New(Config{
		DefaultRPS:   10, // 10 requests per second = 100ms interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "https://test.com"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "https://test.com/next"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	metrics.Init()
	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_ContextCancelled(t *testing.T) {
	metrics.Init()
	l := New(Config{DefaultRPS: 0.5, DefaultBurst: 1})
	if err := l.Wait(context.Background(), "https://slow.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://slow.com"); err == nil {
		t.Fatal("expected wait to fail once the context expires")
	}
}

func TestLimiter_BackoffAndCrawlDelay(t *testing.T) {
	l := New(Config{DefaultRPS: 4, DefaultBurst: 2})

	l.ReportResult("https://busy.com/a", http.StatusOK)
	if got := l.Limit("https://busy.com"); got != rate.Limit(4) {
		t.Fatalf("expected unchanged rate, got %v", got)
	}
	l.ReportResult("https://busy.com/a", http.StatusTooManyRequests)
	if got := l.Limit("https://busy.com"); got != rate.Limit(2) {
		t.Fatalf("expected halved rate, got %v", got)
	}

	l.SetCrawlDelay("https://polite.com", 2*time.Second)
	if got := l.Limit("https://polite.com"); got != rate.Every(2*time.Second) {
		t.Fatalf("expected crawl delay rate, got %v", got)
	}
	// A shorter delay must not speed the domain back up.
	l.SetCrawlDelay("https://polite.com", 100*time.Millisecond)
	if got := l.Limit("https://polite.com"); got != rate.Every(2*time.Second) {
		t.Fatalf("expected crawl delay to stick, got %v", got)
	}
}
