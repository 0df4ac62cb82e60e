package orchestrator

import (
	"math"
	"sort"
	"time"

	"github.com/JakeFAU/seo-site-crawler/internal/analyzer"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/linkgraph"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
	"github.com/JakeFAU/seo-site-crawler/internal/sitemap"
)

// assemble runs the site-wide passes over the collected pages.
func (o *Orchestrator) assemble(c *crawl, audit *crawler.SitemapAudit, started time.Time) (crawler.Report, *linkgraph.Graph) {
	c.mu.Lock()
	results := append([]crawler.PageResult(nil), c.results...)
	retries, panics := c.retries, c.panics
	c.mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Page.Depth != results[j].Page.Depth {
			return results[i].Page.Depth < results[j].Page.Depth
		}
		return results[i].Page.URL < results[j].Page.URL
	})

	pages := make([]*crawler.PageRecord, len(results))
	crawled := make([]string, len(results))
	for i := range results {
		pages[i] = &results[i].Page
		crawled[i] = results[i].Page.URL
	}

	graph := linkgraph.Build(c.frontier.Root(), pages)
	var issues []crawler.Issue
	for _, r := range results {
		issues = append(issues, r.Issues...)
	}
	issues = append(issues, analyzer.Duplicates(pages)...)
	issues = append(issues, graph.Issues()...)
	groupByURL(issues, crawled)

	if audit != nil {
		sitemap.Reconcile(audit, crawled)
	}

	report := crawler.Report{
		JobID:            c.job.ID,
		RootURL:          c.frontier.Root(),
		StartedAt:        started,
		FinishedAt:       o.deps.Clock.Now(),
		Pages:            results,
		Issues:           issues,
		LinkGraphSummary: graph.Summary(),
		Sitemap:          audit,
	}
	report.Counters = counters(results, issues)
	report.Counters.ScopeDropped = c.frontier.ScopeDropped()
	report.Counters.Retries = retries
	report.Counters.WorkerPanics = panics

	for _, is := range issues {
		metrics.ObserveIssue(is.Category, string(is.Severity))
	}
	return report, graph
}

// groupByURL orders issues by the position of their URL in the page list.
// The sort is stable, so each analyzer's emission order survives.
func groupByURL(issues []crawler.Issue, order []string) {
	rank := make(map[string]int, len(order))
	for i, u := range order {
		rank[u] = i
	}
	pos := func(u string) int {
		if r, ok := rank[u]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return pos(issues[i].URL) < pos(issues[j].URL)
	})
}

func counters(results []crawler.PageResult, issues []crawler.Issue) crawler.Counters {
	out := crawler.Counters{
		PagesCrawled:     len(results),
		IssuesBySeverity: map[crawler.Severity]int{},
		IssuesByCategory: map[string]int{},
	}
	var loadTotal int64
	fetched := 0
	for _, r := range results {
		p := r.Page
		if !p.Fetched() {
			out.PagesFailed++
			continue
		}
		fetched++
		loadTotal += p.LoadTimeMS
		out.TotalBytes += p.PageSizeBytes
		if p.Rendered {
			out.PagesRendered++
		}
	}
	if fetched > 0 {
		out.AverageLoadTimeMS = math.Round(float64(loadTotal)/float64(fetched)*10) / 10
	}
	for _, is := range issues {
		out.IssuesBySeverity[is.Severity]++
		out.IssuesByCategory[is.Category]++
	}
	return out
}
