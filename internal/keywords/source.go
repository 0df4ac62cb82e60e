// Package keywords supplies keyword rankings per domain. Sources are
// swappable: a static YAML file, a deterministic simulator for demos, and a
// timeout wrapper that turns slow or failing suppliers into empty results.
package keywords

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
)

// Source fetches the rankings of domain. A non-empty keywords list limits
// the result to those keywords.
type Source interface {
	FetchRankings(ctx context.Context, domain string, keywords []string) (competitive.Rankings, error)
}

// Degrading wraps a Source so that errors and timeouts yield empty rankings.
type Degrading struct {
	next    Source
	timeout time.Duration
	logger  *zap.Logger
}

// WithTimeout bounds every call to next by timeout and degrades failures.
func WithTimeout(next Source, timeout time.Duration, logger *zap.Logger) *Degrading {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Degrading{next: next, timeout: timeout, logger: logger.Named("keywords")}
}

// FetchRankings implements Source. It only returns an error when the caller's
// own context is done.
func (d *Degrading) FetchRankings(ctx context.Context, domain string, keywords []string) (competitive.Rankings, error) {
	if d.next == nil {
		return competitive.Rankings{}, nil
	}
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type result struct {
		rankings competitive.Rankings
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := d.next.FetchRankings(callCtx, domain, keywords)
		ch <- result{rankings: r, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch rankings for %s: %w", domain, ctx.Err())
			}
			d.logger.Warn("keyword source failed, using empty rankings",
				zap.String("domain", domain), zap.Error(res.err))
			return competitive.Rankings{}, nil
		}
		if res.rankings == nil {
			return competitive.Rankings{}, nil
		}
		return res.rankings.Filter(keywords), nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch rankings for %s: %w", domain, ctx.Err())
		}
		d.logger.Warn("keyword source timed out, using empty rankings",
			zap.String("domain", domain), zap.Duration("timeout", d.timeout))
		return competitive.Rankings{}, nil
	}
}

// ErrUnknownSource is returned by New for an unrecognized source name.
var ErrUnknownSource = errors.New("unknown keyword source")

// Config selects and tunes a Source.
type Config struct {
	Source      string
	File        string
	Timeout     time.Duration
	MaxKeywords int
}

// New builds the configured source wrapped in WithTimeout.
func New(cfg Config, logger *zap.Logger) (Source, error) {
	var src Source
	switch cfg.Source {
	case "", "simulated":
		src = NewSimulated(cfg.MaxKeywords)
	case "static":
		static, err := LoadStatic(cfg.File)
		if err != nil {
			return nil, err
		}
		src = static
	case "none":
		src = nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Source)
	}
	return WithTimeout(src, cfg.Timeout, logger), nil
}
