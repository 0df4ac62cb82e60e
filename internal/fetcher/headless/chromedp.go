// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Viewport is the emulated screen. Mobile emulation matches how search
// engines render pages for mobile-first indexing.
type Viewport struct {
	Width  int64
	Height int64
	Mobile bool
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Viewport          Viewport
}

// Fetcher renders pages in headless Chrome. One browser process is shared;
// each Fetch gets its own tab.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first Fetch. MaxParallel zero means unbounded tabs.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	cfg.SettleDelay = max(cfg.SettleDelay, 0)

	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions()...)
	return f, nil
}

const defaultNavTimeout = 30 * time.Second

func allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
	)
}

// Close shuts the browser down. In-flight fetches fail.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads request.URL in a fresh tab, waits for the body and returns the
// rendered DOM with the main document's status and headers.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.slots != nil {
		if err := f.slots.Acquire(ctx, 1); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless slot wait canceled: %w", err)
		}
		defer f.slots.Release(1)
	}

	tabCtx, closeTab := chromedp.NewContext(f.allocator)
	defer closeTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	html, location, err := f.render(tabCtx, request.URL)
	if err != nil {
		return crawler.FetchResponse{}, &crawler.FetchError{URL: request.URL, Attempts: 1, Err: err}
	}
	status, headers, finalURL := meta.snapshotWithFallbacks(request.URL, location)

	return crawler.FetchResponse{
		URL:           request.URL,
		FinalURL:      finalURL,
		StatusCode:    status,
		Headers:       headers,
		Body:          []byte(html),
		Duration:      time.Since(start),
		RedirectChain: meta.redirectChain(finalURL),
		UsedHeadless:  true,
		Attempts:      1,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, target string) (html, location string, err error) {
	tasks := chromedp.Tasks{
		f.setup(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.SettleDelay > 0 {
		tasks = append(tasks, chromedp.Sleep(f.cfg.SettleDelay))
	}
	tasks = append(tasks,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, location, nil
}

func (f *Fetcher) setup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := f.cfg.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if vp := f.cfg.Viewport; vp.Width > 0 && vp.Height > 0 {
			if err := emulation.SetDeviceMetricsOverride(vp.Width, vp.Height, 1, vp.Mobile).Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		return nil
	})
}

// responseMeta collects the main document's response and its redirect hops
// from browser network events.
type responseMeta struct {
	mu       sync.RWMutex
	status   int
	headers  http.Header
	url      string
	captured bool
	hops     []string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Later document responses belong to iframes.
	if m.captured {
		return
	}
	m.captured = true
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) captureRedirect(event *network.EventRequestWillBeSent) {
	if event.Type != network.ResourceTypeDocument || event.RedirectResponse == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.captured {
		return
	}
	m.hops = append(m.hops, event.RedirectResponse.URL)
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) redirectChain(finalURL string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.hops) == 0 {
		return nil
	}
	chain := append([]string(nil), m.hops...)
	return append(chain, finalURL)
}

func (m *responseMeta) captureEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		m.capture(e)
	case *network.EventRequestWillBeSent:
		m.captureRedirect(e)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}
