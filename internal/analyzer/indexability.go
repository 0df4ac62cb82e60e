package analyzer

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Indexability reports why a fetched URL would not be indexed: noindex
// directives, HTTP errors and redirects.
type Indexability struct{}

// NewIndexability returns the indexability analyzer.
func NewIndexability() *Indexability { return &Indexability{} }

// Name implements Analyzer.
func (*Indexability) Name() string { return "indexability" }

// Analyze implements Analyzer.
func (*Indexability) Analyze(page *crawler.PageRecord) (Result, error) {
	var issues []crawler.Issue
	indexable := true

	if page.StatusCode >= 400 {
		indexable = false
		issues = append(issues, issue(page, crawler.CategoryIndexability, "http_error", crawler.SeverityError,
			fmt.Sprintf("HTTP %d error", page.StatusCode), "Fix the page or remove links pointing to it"))
	}
	if page.RedirectTarget != "" {
		issues = append(issues, issue(page, crawler.CategoryIndexability, "redirected", crawler.SeverityInfo,
			fmt.Sprintf("Redirects to %s (%d hops)", page.RedirectTarget, max(len(page.RedirectChain)-1, 1)),
			"Link directly to the final URL"))
	}
	if hasNoindex(page.Headers.Get("X-Robots-Tag")) {
		indexable = false
		issues = append(issues, issue(page, crawler.CategoryIndexability, "noindex", crawler.SeverityWarning,
			"X-Robots-Tag: noindex", "Remove the noindex header if the page should rank"))
	}
	if hasNoindex(page.MetaRobots) {
		indexable = false
		issues = append(issues, issue(page, crawler.CategoryIndexability, "noindex", crawler.SeverityWarning,
			"Meta robots: noindex", "Remove the noindex directive if the page should rank"))
	}

	v := 0.0
	if indexable {
		v = 1
	}
	return Result{Issues: issues, Metrics: map[string]float64{"indexable": v}}, nil
}

func hasNoindex(directives string) bool {
	for _, d := range strings.Split(strings.ToLower(directives), ",") {
		d = strings.TrimSpace(d)
		if d == "noindex" || d == "none" || strings.HasSuffix(d, ": noindex") || strings.HasSuffix(d, ":noindex") {
			return true
		}
	}
	return false
}

// Indexable reports whether a page answered below 400 without a noindex
// directive in its headers or meta robots.
func Indexable(page *crawler.PageRecord) bool {
	return page.StatusCode > 0 && page.StatusCode < 400 &&
		!hasNoindex(page.Headers.Get("X-Robots-Tag")) && !hasNoindex(page.MetaRobots)
}
