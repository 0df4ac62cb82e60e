package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// ErrUnavailable is returned when headless rendering is disabled.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop implements Fetcher but always fails, so callers fall back to the
// static response.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrUnavailable.
func (Noop) Fetch(_ context.Context, _ crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, ErrUnavailable
}
