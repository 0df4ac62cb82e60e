package sitemap

import (
	"fmt"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// crawlDelayWarning is the crawl-delay, in seconds, above which indexing is
// noticeably slowed.
const crawlDelayWarning = 10

// Reconcile marks which sitemap URLs were crawled, lists the gaps in both
// directions and rebuilds the recommendations.
func Reconcile(audit *crawler.SitemapAudit, crawled []string) {
	if audit == nil {
		return
	}
	crawledSet := make(map[string]struct{}, len(crawled))
	for _, u := range crawled {
		crawledSet[key(u)] = struct{}{}
	}

	audit.NotInCrawl = nil
	listed := make(map[string]struct{}, len(audit.URLs))
	for i := range audit.URLs {
		k := key(audit.URLs[i].Loc)
		_, ok := crawledSet[k]
		audit.URLs[i].InCrawl = ok
		if _, dup := listed[k]; dup {
			continue
		}
		listed[k] = struct{}{}
		if !ok {
			audit.NotInCrawl = append(audit.NotInCrawl, audit.URLs[i].Loc)
		}
	}

	audit.MissingFromMap = nil
	if len(audit.URLs) > 0 {
		for _, u := range crawled {
			if _, ok := listed[key(u)]; !ok {
				audit.MissingFromMap = append(audit.MissingFromMap, u)
			}
		}
	}
	audit.Recommendations = recommendations(audit)
}

func recommendations(audit *crawler.SitemapAudit) []string {
	var out []string
	if len(audit.URLs) == 0 {
		out = append(out, "Create a sitemap.xml to help search engines discover your pages")
	} else {
		if n := len(audit.NotInCrawl); n > 0 {
			out = append(out, fmt.Sprintf("%d URLs in sitemap but not crawled - check for crawl errors or crawl budget", n))
		}
		if n := len(audit.InvalidURLs); n > 0 {
			out = append(out, fmt.Sprintf("Fix %d invalid URLs in sitemap", n))
		}
		if n := len(audit.MissingFromMap); n > 0 {
			out = append(out, fmt.Sprintf("%d crawled pages not in sitemap - add important pages", n))
		}
	}
	if !audit.HasRobots {
		out = append(out, "Create a robots.txt file to guide search engine crawlers")
		return out
	}
	if audit.RobotsSitemap == "" {
		out = append(out, "Add a sitemap reference to robots.txt: Sitemap: https://yoursite.com/sitemap.xml")
	}
	if audit.CrawlDelay > crawlDelayWarning {
		out = append(out, fmt.Sprintf("Consider reducing crawl-delay from %d to improve indexing speed", audit.CrawlDelay))
	}
	return out
}

func key(raw string) string {
	if normalized, err := crawler.NormalizeURL(raw); err == nil {
		return normalized
	}
	return raw
}
