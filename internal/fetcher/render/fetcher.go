// Package render composes the static and headless fetchers: pages are
// fetched statically first and promoted to a browser render when the job's
// render mode or the SPA detector asks for it.
package render

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

// Detector reports whether a static response needs a browser render.
type Detector interface {
	Decide(resp crawler.FetchResponse) (bool, string)
}

// Fetcher implements crawler.Fetcher over a static and a headless fetcher.
type Fetcher struct {
	static   crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds the composite fetcher. headless and detector may be nil, which
// disables promotion.
func New(static, headless crawler.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		static:   static,
		headless: headless,
		detector: detector,
		logger:   logger.Named("render"),
	}
}

// Fetch honors request.Render: never skips the browser, always uses it
// first, auto promotes on the detector's verdict. A failed render falls back
// to the static response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if request.Render == crawler.RenderAlways && f.headless != nil {
		resp, err := f.headless.Fetch(ctx, request)
		if err == nil {
			metrics.ObserveHeadlessRender("forced")
			return resp, nil
		}
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, err
		}
		f.logRenderFailure(request, err)
	}

	resp, err := f.static.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if request.Render != crawler.RenderAuto || f.headless == nil || f.detector == nil {
		return resp, nil
	}

	promote, reason := f.detector.Decide(resp)
	if !promote {
		return resp, nil
	}
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		f.logRenderFailure(request, err)
		return resp, nil
	}
	metrics.ObserveHeadlessRender(reason)
	return mergeResponses(resp, rendered), nil
}

// mergeResponses keeps the rendered DOM while preserving what only the
// static fetch observed.
func mergeResponses(static, rendered crawler.FetchResponse) crawler.FetchResponse {
	out := rendered
	if len(out.Headers) == 0 {
		out.Headers = static.Headers
	}
	if len(out.RedirectChain) == 0 {
		out.RedirectChain = static.RedirectChain
	}
	if out.FinalURL == "" {
		out.FinalURL = static.FinalURL
	}
	out.URL = static.URL
	out.Attempts = static.Attempts + rendered.Attempts
	return out
}

func (f *Fetcher) logRenderFailure(request crawler.FetchRequest, err error) {
	if errors.Is(err, headless.ErrUnavailable) {
		return
	}
	f.logger.Warn("headless render failed, using static response",
		zap.String("job_id", request.JobID),
		zap.String("url", request.URL),
		zap.Error(err),
	)
}
