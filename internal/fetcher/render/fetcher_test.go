package render

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

type fakeFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls++
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	resp := f.resp
	resp.URL = req.URL
	return resp, nil
}

type fixedDetector struct{ promote bool }

func (d fixedDetector) Decide(crawler.FetchResponse) (bool, string) {
	return d.promote, "spa_marker"
}

func staticResp() crawler.FetchResponse {
	return crawler.FetchResponse{
		StatusCode:    200,
		Headers:       http.Header{"X-Frame-Options": {"DENY"}},
		Body:          []byte(`<div id="root"></div>`),
		RedirectChain: []string{"https://example.com/a", "https://example.com/b"},
		Attempts:      1,
	}
}

func renderedResp() crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: 200, Body: []byte("<h1>Rendered</h1>"), UsedHeadless: true, Attempts: 1}
}

func TestAutoPromotesOnDetector(t *testing.T) {
	t.Parallel()
	metrics.Init()
	static := &fakeFetcher{resp: staticResp()}
	browser := &fakeFetcher{resp: renderedResp()}
	f := New(static, browser, fixedDetector{promote: true}, nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a", Render: crawler.RenderAuto})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, "<h1>Rendered</h1>", string(resp.Body))
	require.Equal(t, "DENY", resp.Headers.Get("X-Frame-Options"))
	require.Len(t, resp.RedirectChain, 2)
	require.Equal(t, 2, resp.Attempts)
}

func TestAutoKeepsStaticWhenDetectorDeclines(t *testing.T) {
	t.Parallel()
	static := &fakeFetcher{resp: staticResp()}
	browser := &fakeFetcher{resp: renderedResp()}
	f := New(static, browser, fixedDetector{}, nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a", Render: crawler.RenderAuto})
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
	require.Zero(t, browser.calls)
}

func TestNeverSkipsBrowser(t *testing.T) {
	t.Parallel()
	static := &fakeFetcher{resp: staticResp()}
	browser := &fakeFetcher{resp: renderedResp()}
	f := New(static, browser, fixedDetector{promote: true}, nil)

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a", Render: crawler.RenderNever})
	require.NoError(t, err)
	require.Zero(t, browser.calls)
}

func TestAlwaysFallsBackToStatic(t *testing.T) {
	t.Parallel()
	metrics.Init()
	static := &fakeFetcher{resp: staticResp()}
	browser := &fakeFetcher{err: errors.New("chrome crashed")}
	f := New(static, browser, nil, nil)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a", Render: crawler.RenderAlways})
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
	require.Equal(t, 1, static.calls)

	browser.err = nil
	browser.resp = renderedResp()
	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/a", Render: crawler.RenderAlways})
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, 1, static.calls)
}

func TestStaticErrorPropagates(t *testing.T) {
	t.Parallel()
	static := &fakeFetcher{err: &crawler.FetchError{URL: "https://example.com", Attempts: 3, Err: crawler.ErrRedirectLoop}}
	f := New(static, nil, nil, nil)

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com", Render: crawler.RenderAuto})
	require.ErrorIs(t, err, crawler.ErrRedirectLoop)
}
