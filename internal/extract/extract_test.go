package extract

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

type hostScope string

func (h hostScope) InScope(rawURL string) bool {
	return crawler.Hostname(rawURL) == string(h)
}

const samplePage = `<!doctype html>
<html lang="en">
<head>
  <title>  Example   Shoes </title>
  <meta name="Description" content="Hand made shoes.">
  <meta name="robots" content="NOINDEX, follow">
  <link rel="canonical" href="/shoes">
  <script>var tracking = "hidden words";</script>
</head>
<body>
  <h1>Shoes</h1>
  <h2>Boots</h2>
  <h3>Winter</h3>
  <p>The cat sat on the mat.</p>
  <img src="/a.jpg" alt="first">
  <img src="data:image/png;base64,xx">
  <img src="/c.webp" alt="" loading="lazy" width="10" height="10">
  <a href="/about/">About</a>
  <a href="https://other.com/x">Other</a>
  <a href="mailto:hi@example.com">Mail</a>
  <a href="#top">Top</a>
  <a href="/contact" aria-label="Contact us"><img src="/i.svg" alt="icon"></a>
</body>
</html>`

func TestPageExtractsSEOFields(t *testing.T) {
	t.Parallel()
	resp := crawler.FetchResponse{
		URL:        "https://example.com/shoes/",
		FinalURL:   "https://example.com/shoes/",
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(samplePage),
		Duration:   1500 * time.Millisecond,
	}

	page, err := Page(resp, 2, hostScope("example.com"))
	require.NoError(t, err)

	require.Equal(t, "https://example.com/shoes", page.URL)
	require.Empty(t, page.RedirectTarget)
	require.Equal(t, 2, page.Depth)
	require.Equal(t, "Example Shoes", page.Title)
	require.Equal(t, "Hand made shoes.", page.MetaDescription)
	require.Equal(t, "noindex, follow", page.MetaRobots)
	require.Equal(t, "https://example.com/shoes", page.Canonical)
	require.Equal(t, "en", page.Lang)
	require.Equal(t, []string{"Shoes"}, page.H1)
	require.Equal(t, []crawler.Heading{{Level: 1, Text: "Shoes"}, {Level: 2, Text: "Boots"}, {Level: 3, Text: "Winter"}}, page.Headings)
	require.Equal(t, int64(1500), page.LoadTimeMS)
	require.Equal(t, int64(len(samplePage)), page.PageSizeBytes)
	require.NotEmpty(t, page.RenderedHTML)

	require.Len(t, page.Images, 4)
	require.Equal(t, "https://example.com/a.jpg", page.Images[0].Src)
	require.True(t, page.Images[0].HasAlt)
	require.False(t, page.Images[1].HasAlt)
	require.True(t, strings.HasPrefix(page.Images[1].Src, "data:"))
	require.Equal(t, "lazy", page.Images[2].Loading)
	require.Equal(t, 2, page.Images[2].Position)

	require.Equal(t, []crawler.Link{
		{URL: "https://example.com/about", Text: "About"},
		{URL: "https://example.com/contact", Text: "Contact us"},
	}, page.Links.Internal)
	require.Equal(t, []crawler.Link{{URL: "https://other.com/x", Text: "Other"}}, page.Links.External)

	require.NotContains(t, page.BodyText, "hidden words")
	require.Contains(t, page.BodyText, "The cat sat on the mat.")
}

func TestPageRecordsRedirectTarget(t *testing.T) {
	t.Parallel()
	resp := crawler.FetchResponse{
		URL:           "https://example.com/old",
		FinalURL:      "https://example.com/new",
		StatusCode:    200,
		RedirectChain: []string{"https://example.com/old", "https://example.com/new"},
		Body:          []byte("<html><body><a href='x'>x</a></body></html>"),
	}
	page, err := Page(resp, 1, hostScope("example.com"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/new", page.RedirectTarget)
	// Relative links resolve against the final URL.
	require.Equal(t, "https://example.com/x", page.Links.Internal[0].URL)
}

func TestPageSkipsNonHTML(t *testing.T) {
	t.Parallel()
	resp := crawler.FetchResponse{
		URL:        "https://example.com/file.pdf",
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": {"application/pdf"}},
		Body:       []byte("%PDF-1.4"),
	}
	page, err := Page(resp, 1, hostScope("example.com"))
	require.NoError(t, err)
	require.Empty(t, page.RenderedHTML)
	require.Empty(t, page.Title)
	require.Equal(t, int64(8), page.PageSizeBytes)
}

func TestPageHonorsBaseHref(t *testing.T) {
	t.Parallel()
	resp := crawler.FetchResponse{
		URL:        "https://example.com/a/b",
		StatusCode: 200,
		Body:       []byte(`<html><head><base href="/docs/"></head><body><a href="intro">Intro</a></body></html>`),
	}
	page, err := Page(resp, 0, hostScope("example.com"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/docs/intro", page.Links.Internal[0].URL)
}
