package analyzer

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

type hostScope string

func (h hostScope) InScope(rawURL string) bool {
	return crawler.Hostname(rawURL) == string(h)
}

func buildPage(t *testing.T, rawURL, body string, headers http.Header) *crawler.PageRecord {
	t.Helper()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Content-Type", "text/html; charset=utf-8")
	page, err := extract.Page(crawler.FetchResponse{
		URL:        rawURL,
		FinalURL:   rawURL,
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       []byte(body),
	}, 0, hostScope(crawler.Hostname(rawURL)))
	require.NoError(t, err)
	return &page
}

func codes(issues []crawler.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Code)
	}
	return out
}

type stubAnalyzer struct {
	name  string
	res   Result
	err   error
	panic bool
}

func (s stubAnalyzer) Name() string { return s.name }

func (s stubAnalyzer) Analyze(*crawler.PageRecord) (Result, error) {
	if s.panic {
		panic("boom")
	}
	return s.res, s.err
}

func TestPipelineIsolatesFailures(t *testing.T) {
	t.Parallel()
	metrics.Init()

	ok := Result{
		Issues:  []crawler.Issue{{Code: "first"}, {Code: "second"}},
		Metrics: map[string]float64{"count": 2},
	}
	p := NewPipeline(nil,
		stubAnalyzer{name: "panicky", panic: true},
		stubAnalyzer{name: "healthy", res: ok},
		stubAnalyzer{name: "broken", err: errors.New("bad input")},
	)
	require.Equal(t, []string{"panicky", "healthy", "broken"}, p.Names())

	res := p.Run(&crawler.PageRecord{URL: "https://example.com/"})
	require.Equal(t, []string{"analyzer_error", "first", "second", "analyzer_error"}, codes(res.Issues))
	require.Equal(t, crawler.CategoryAnalyzer, res.Issues[0].Category)
	require.Contains(t, res.Issues[0].Message, "panic: boom")
	require.Contains(t, res.Issues[3].Message, "bad input")
	require.Equal(t, "https://example.com/", res.Issues[3].URL)
	require.Equal(t, map[string]float64{"healthy.count": 2}, res.Metrics)
}

func TestDefaultPipelineOrder(t *testing.T) {
	t.Parallel()

	p := Default(DefaultContentWeights(), nil)
	require.Equal(t, []string{
		"indexability", "metadata", "content", "images", "accessibility", "security", "structured_data",
	}, p.Names())
}

func TestDefaultPipelineOnRealPage(t *testing.T) {
	t.Parallel()

	page := buildPage(t, "https://example.com/blog/post", `<html><head><title>Short</title></head>
<body><h1>Post</h1><h3>Skipped</h3><p>The cat sat on the mat.</p>
<img src="/a.png"><a href="/more">Read more</a></body></html>`, nil)

	res := Default(DefaultContentWeights(), nil).Run(page)
	got := codes(res.Issues)
	for _, want := range []string{
		"title_too_short", "missing_meta_description", "thin_content",
		"missing_alt_text", "missing_lang", "generic_link_text", "heading_hierarchy_skip",
		"missing_csp", "missing_hsts",
	} {
		require.Contains(t, got, want)
	}
	require.NotContains(t, got, "analyzer_error")
	require.Equal(t, 10.0, res.Metrics["content.word_count"])
	require.Equal(t, 1.0, res.Metrics["indexability.indexable"])
}

func TestDOMAnalyzersSkipErrorPages(t *testing.T) {
	t.Parallel()

	page := &crawler.PageRecord{URL: "https://example.com/gone", StatusCode: http.StatusNotFound, RenderedHTML: "<html></html>"}
	res := Default(DefaultContentWeights(), nil).Run(page)
	require.Equal(t, []string{"http_error"}, codes(res.Issues))
	require.Equal(t, 0.0, res.Metrics["indexability.indexable"])
}

func TestIndexability(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("X-Robots-Tag", "googlebot: noindex")
	page := &crawler.PageRecord{
		URL:            "https://example.com/old",
		StatusCode:     http.StatusOK,
		RedirectTarget: "https://example.com/new",
		RedirectChain:  []string{"https://example.com/old", "https://example.com/new"},
		MetaRobots:     "noindex, nofollow",
		Headers:        headers,
	}
	res, err := NewIndexability().Analyze(page)
	require.NoError(t, err)
	require.Equal(t, []string{"redirected", "noindex", "noindex"}, codes(res.Issues))
	require.Equal(t, 0.0, res.Metrics["indexable"])

	require.False(t, hasNoindex("index, follow"))
	require.True(t, hasNoindex("none"))

	require.False(t, Indexable(page))
	require.True(t, Indexable(&crawler.PageRecord{StatusCode: http.StatusMovedPermanently, Headers: http.Header{}}))
	require.False(t, Indexable(&crawler.PageRecord{StatusCode: http.StatusGone, Headers: http.Header{}}))
}

func TestMetadataShortTitleMissingMeta(t *testing.T) {
	t.Parallel()

	page := buildPage(t, "https://example.com/", `<html><head><title>Ten chars!</title></head><body><h1>Hi</h1></body></html>`, nil)
	require.Len(t, page.Title, 10)

	res, err := NewMetadata().Analyze(page)
	require.NoError(t, err)
	got := codes(res.Issues)
	require.Contains(t, got, "title_too_short")
	require.Contains(t, got, "missing_meta_description")
	require.NotContains(t, got, "missing_h1")
	require.Equal(t, 10.0, res.Metrics["title_length"])
}

func TestMetadataBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		meta  string
		h1    []string
		canon string
		want  []string
	}{
		{name: "missing everything", want: []string{"missing_title", "missing_meta_description", "missing_h1", "missing_canonical"}},
		{
			name:  "all good",
			title: strings.Repeat("t", 45),
			meta:  strings.Repeat("m", 140),
			h1:    []string{"one"},
			canon: "https://example.com/",
		},
		{
			name:  "too long and repeated h1",
			title: strings.Repeat("t", 61),
			meta:  strings.Repeat("m", 161),
			h1:    []string{"one", "two"},
			canon: "https://example.com/",
			want:  []string{"title_too_long", "meta_description_too_long", "multiple_h1"},
		},
		{
			name:  "short meta",
			title: strings.Repeat("t", 30),
			meta:  strings.Repeat("m", 119),
			h1:    []string{"one"},
			canon: "https://example.com/",
			want:  []string{"meta_description_too_short"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			page := &crawler.PageRecord{
				URL: "https://example.com/", StatusCode: 200, RenderedHTML: "<html></html>",
				Title: tt.title, MetaDescription: tt.meta, H1: tt.h1, Canonical: tt.canon,
			}
			res, err := NewMetadata().Analyze(page)
			require.NoError(t, err)
			if tt.want == nil {
				require.Empty(t, res.Issues)
				return
			}
			require.Equal(t, tt.want, codes(res.Issues))
		})
	}
}

func TestDuplicates(t *testing.T) {
	t.Parallel()

	mk := func(u, title, meta string) *crawler.PageRecord {
		return &crawler.PageRecord{URL: u, StatusCode: 200, RenderedHTML: "<html></html>", Title: title, MetaDescription: meta}
	}
	pages := []*crawler.PageRecord{
		mk("https://example.com/a", "Shoes | Shop", "Buy shoes"),
		mk("https://example.com/b", "shoes  |  shop", "Other"),
		mk("https://example.com/c", "Boots", "Buy shoes"),
		mk("https://example.com/d", "", ""),
		{URL: "https://example.com/e", StatusCode: 404, Title: "Boots"},
	}
	issues := Duplicates(pages)
	require.Equal(t, []string{"duplicate_title", "duplicate_meta_description", "duplicate_title", "duplicate_meta_description"}, codes(issues))
	require.Equal(t, "https://example.com/a", issues[0].URL)
	require.Equal(t, "https://example.com/b", issues[2].URL)
	require.Equal(t, "https://example.com/c", issues[3].URL)
}
