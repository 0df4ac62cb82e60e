package crawler

import "time"

// PageResult pairs a page with the analyzer output computed for it.
type PageResult struct {
	Page        PageRecord         `json:"page"`
	Issues      []Issue            `json:"issues"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Performance *Performance       `json:"performance,omitempty"`
}

// Performance is the Core Web Vitals shape returned by a scorer.
type Performance struct {
	Available bool    `json:"available"`
	LCP       float64 `json:"lcp,omitempty"`
	CLS       float64 `json:"cls,omitempty"`
	INP       float64 `json:"inp,omitempty"`
	TTFB      float64 `json:"ttfb,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// LinkCount is a page and the number of internal links pointing at it.
type LinkCount struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

// LinkGraphSummary is the site-wide view computed after crawling.
type LinkGraphSummary struct {
	TotalInternalLinks  int            `json:"total_internal_links"`
	UniqueInternalLinks int            `json:"unique_internal_links"`
	AverageLinksPerPage float64        `json:"average_links_per_page"`
	MaxDepth            int            `json:"max_depth"`
	ClickDepth          map[string]int `json:"click_depth"`
	Unreachable         []string       `json:"unreachable,omitempty"`
	Orphans             []string       `json:"orphans"`
	InDegree            map[string]int `json:"in_degree"`
	OutDegree           map[string]int `json:"out_degree"`
	FewLinks            []string       `json:"few_links,omitempty"`
	TopLinked           []LinkCount    `json:"top_linked,omitempty"`
	BrokenLinks         []BrokenLink   `json:"broken_links,omitempty"`
	UncrawledTargets    int            `json:"uncrawled_targets"`
	HealthScore         int            `json:"health_score"`
}

// BrokenLink is an internal link whose target was fetched and failed.
type BrokenLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Status int    `json:"status"`
}

// SitemapURL is one <url> entry of a sitemap.
type SitemapURL struct {
	Loc        string  `json:"loc"`
	LastMod    string  `json:"lastmod,omitempty"`
	ChangeFreq string  `json:"changefreq,omitempty"`
	Priority   float64 `json:"priority,omitempty"`
	InCrawl    bool    `json:"in_crawl"`
}

// SitemapAudit compares sitemap and robots.txt against the crawl.
type SitemapAudit struct {
	SitemapURL      string       `json:"sitemap_url,omitempty"`
	URLs            []SitemapURL `json:"urls,omitempty"`
	NotInCrawl      []string     `json:"not_in_crawl,omitempty"`
	MissingFromMap  []string     `json:"missing_from_sitemap,omitempty"`
	InvalidURLs     []string     `json:"invalid_urls,omitempty"`
	HasRobots       bool         `json:"has_robots_txt"`
	RobotsSitemap   string       `json:"robots_sitemap,omitempty"`
	DisallowedPaths []string     `json:"disallowed_paths,omitempty"`
	CrawlDelay      int          `json:"crawl_delay,omitempty"`
	RobotsIssues    []string     `json:"robots_issues,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

// Counters summarise a finished crawl.
type Counters struct {
	PagesCrawled      int              `json:"pages_crawled"`
	PagesFailed       int              `json:"pages_failed"`
	PagesRendered     int              `json:"pages_rendered"`
	IssuesBySeverity  map[Severity]int `json:"issues_by_severity"`
	IssuesByCategory  map[string]int   `json:"issues_by_category"`
	AverageLoadTimeMS float64          `json:"average_load_time_ms"`
	TotalBytes        int64            `json:"total_bytes"`
	ScopeDropped      int              `json:"scope_dropped"`
	Retries           int              `json:"retries"`
	WorkerPanics      int              `json:"worker_panics"`
}

// Report is the result payload of a crawl job.
type Report struct {
	JobID            string           `json:"job_id"`
	RootURL          string           `json:"root_url"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	Partial          bool             `json:"partial,omitempty"`
	Pages            []PageResult     `json:"pages"`
	Issues           []Issue          `json:"issues"`
	LinkGraphSummary LinkGraphSummary `json:"link_graph_summary"`
	Counters         Counters         `json:"counters"`
	Sitemap          *SitemapAudit    `json:"sitemap,omitempty"`
}
