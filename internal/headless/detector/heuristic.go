// Package detector decides when a statically fetched page must be rendered
// in a headless browser before it can be analyzed.
package detector

import (
	"bytes"
	"mime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Promotion reasons reported by Decide.
const (
	ReasonEmptyBody     = "empty_body"
	ReasonScriptDensity = "script_density"
	ReasonSPAMarker     = "spa_marker"
	ReasonNoscript      = "noscript_notice"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Mount points left empty by client-side frameworks.
var spaMarkers = [][]byte{
	[]byte("id=\"__next\""),
	[]byte("id=\"__nuxt\""),
	[]byte("id=\"root\"></div>"),
	[]byte("id=\"app\"></div>"),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
	[]byte("data-v-app"),
}

var noscriptNotices = [][]byte{
	[]byte("enable javascript"),
	[]byte("javascript is required"),
	[]byte("javascript to run this app"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	promote, _ := h.Decide(resp)
	return promote
}

// Decide is ShouldPromote plus the rule that fired.
func (h *Heuristic) Decide(resp crawler.FetchResponse) (bool, string) {
	if resp.StatusCode != 200 || !isHTML(resp.Headers.Get("Content-Type")) {
		return false, ""
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true, ReasonEmptyBody
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true, ReasonScriptDensity
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true, ReasonSPAMarker
		}
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("<noscript")) {
		for _, notice := range noscriptNotices {
			if bytes.Contains(lower, notice) {
				return true, ReasonNoscript
			}
		}
	}
	return false, ""
}

// isHTML treats a missing content type as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// scriptShareThreshold is the percentage of document bytes inside <script>
// elements above which a small page is treated as client-rendered.
const scriptShareThreshold = 25

// scriptDensityHigh tokenizes the document and measures how much of it is
// script. An unterminated script counts through to the end of input.
func scriptDensityHigh(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	inScript := false
	scriptBytes := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		name, _ := z.TagName()
		isScript := atom.Lookup(name) == atom.Script
		switch {
		case tt == html.StartTagToken && isScript:
			inScript = true
			scriptBytes += len(z.Raw())
		case tt == html.EndTagToken && isScript:
			scriptBytes += len(z.Raw())
			inScript = false
		case inScript:
			scriptBytes += len(z.Raw())
		}
	}
	return scriptBytes*100/len(body) >= scriptShareThreshold
}
