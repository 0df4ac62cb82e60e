// Package perf scores pages for Core Web Vitals.
package perf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// ErrUnavailable means no performance provider is configured.
var ErrUnavailable = errors.New("performance scoring unavailable")

// Unavailable is the scorer used when no provider is configured.
type Unavailable struct{}

// Score always fails with ErrUnavailable.
func (Unavailable) Score(context.Context, string) (crawler.Performance, error) {
	return crawler.Performance{}, ErrUnavailable
}

// Config selects and tunes the scorer.
type Config struct {
	Provider string
	Endpoint string
	APIKey   string
	Strategy string
	Timeout  time.Duration
	// RequestsPerSecond throttles the provider; zero means one request per second.
	RequestsPerSecond float64
}

// Scorer returns Core Web Vitals for one URL.
type Scorer interface {
	Score(ctx context.Context, pageURL string) (crawler.Performance, error)
}

// New builds the configured scorer. "none" and "" yield Unavailable.
func New(cfg Config, logger *zap.Logger) (Scorer, error) {
	switch cfg.Provider {
	case "", "none":
		return Unavailable{}, nil
	case "pagespeed":
		if cfg.APIKey == "" {
			logger.Warn("pagespeed provider selected without an api key; performance scoring disabled")
			return Unavailable{}, nil
		}
		return NewPageSpeed(cfg, nil), nil
	default:
		return nil, fmt.Errorf("unknown performance provider %q", cfg.Provider)
	}
}
