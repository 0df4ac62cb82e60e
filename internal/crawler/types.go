// Package crawler defines core types shared across subsystems.
package crawler

import (
	"encoding/json"
	"net/http"
	"time"
)

// JobState represents the lifecycle state of a job in the registry.
type JobState string

// Job states persisted in the job store.
const (
	JobStatePending JobState = "PENDING"
	JobStateRunning JobState = "RUNNING"
	JobStateSuccess JobState = "SUCCESS"
	JobStateFailure JobState = "FAILURE"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobStatePending:
		return next == JobStateRunning || next == JobStateFailure
	case JobStateRunning:
		return next == JobStateSuccess || next == JobStateFailure
	default:
		return false
	}
}

// JobKind selects the work a job performs.
type JobKind string

// Supported job kinds.
const (
	JobKindCrawl              JobKind = "crawl"
	JobKindKeywordGap         JobKind = "keyword_gap"
	JobKindShareOfVoice       JobKind = "share_of_voice"
	JobKindCompetitorOverview JobKind = "competitor_overview"
	JobKindContentOptimizer   JobKind = "content_optimizer"
	JobKindBulkURLs           JobKind = "bulk_urls"
)

// RenderMode controls when pages are rendered in a headless browser.
type RenderMode string

// Render modes accepted in crawl options.
const (
	RenderAuto   RenderMode = "auto"
	RenderAlways RenderMode = "always"
	RenderNever  RenderMode = "never"
)

// CrawlOptions are the caller-tunable knobs of a crawl.
type CrawlOptions struct {
	AllowSubdomains bool       `json:"allow_subdomains" mapstructure:"allow_subdomains"`
	RespectRobots   bool       `json:"respect_robots" mapstructure:"respect_robots"`
	Render          RenderMode `json:"render,omitempty" mapstructure:"render"`
	IncludeSitemap  bool       `json:"include_sitemap" mapstructure:"include_sitemap"`
	ExcludePatterns []string   `json:"exclude_patterns,omitempty" mapstructure:"exclude_patterns"`
	ArchiveHTML     bool       `json:"archive_html" mapstructure:"archive_html"`
}

// CrawlParams is the payload of a crawl job.
type CrawlParams struct {
	RootURL          string       `json:"root_url" mapstructure:"root_url"`
	MaxPages         int          `json:"max_pages" mapstructure:"max_pages"`
	MaxDepth         int          `json:"max_depth" mapstructure:"max_depth"`
	CheckPerformance bool         `json:"check_performance" mapstructure:"check_performance"`
	Options          CrawlOptions `json:"options" mapstructure:"options"`
}

// KeywordGapParams is the payload of a keyword gap job.
type KeywordGapParams struct {
	DomainA  string   `json:"domain_a"`
	DomainB  string   `json:"domain_b"`
	Keywords []string `json:"keywords,omitempty"`
}

// ShareOfVoiceParams is the payload of a share-of-voice job.
type ShareOfVoiceParams struct {
	Domains  []string `json:"domains"`
	Keywords []string `json:"keywords,omitempty"`
}

// OverviewParams is the payload of a competitor overview job.
type OverviewParams struct {
	Domain string `json:"domain"`
}

// ContentOptimizerParams is the payload of a single-page content review.
type ContentOptimizerParams struct {
	URL            string     `json:"url"`
	TargetKeywords []string   `json:"target_keywords,omitempty"`
	Render         RenderMode `json:"render,omitempty"`
}

// BulkURLParams is the payload of a bulk URL status check.
type BulkURLParams struct {
	URLs []string `json:"urls"`
}

// JobParams carries exactly one kind-specific payload.
type JobParams struct {
	Crawl            *CrawlParams            `json:"crawl,omitempty"`
	KeywordGap       *KeywordGapParams       `json:"keyword_gap,omitempty"`
	ShareOfVoice     *ShareOfVoiceParams     `json:"share_of_voice,omitempty"`
	Overview         *OverviewParams         `json:"overview,omitempty"`
	ContentOptimizer *ContentOptimizerParams `json:"content_optimizer,omitempty"`
	BulkURLs         *BulkURLParams          `json:"bulk_urls,omitempty"`
}

// Job is the registry entry for one submitted request.
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	State      JobState        `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Params     JobParams       `json:"params"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// JobUpdate carries the fields written alongside a state transition.
type JobUpdate struct {
	At     time.Time
	Result json.RawMessage
	Error  string
}

// Heading is one h1-h6 element in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Image is one <img> element as found in the rendered document.
type Image struct {
	Src      string `json:"src"`
	Alt      string `json:"alt"`
	HasAlt   bool   `json:"has_alt"`
	Loading  string `json:"loading,omitempty"`
	Class    string `json:"class,omitempty"`
	DataSrc  string `json:"data_src,omitempty"`
	Srcset   string `json:"srcset,omitempty"`
	Width    string `json:"width,omitempty"`
	Height   string `json:"height,omitempty"`
	Position int    `json:"position"`
}

// Link is one anchor discovered on a page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}

// Links splits discovered anchors by scope.
type Links struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
}

// PageRecord is produced once per fetched URL and never mutated afterwards.
type PageRecord struct {
	URL             string      `json:"url"`
	FinalURL        string      `json:"final_url,omitempty"`
	Depth           int         `json:"depth"`
	StatusCode      int         `json:"status_code"`
	RedirectTarget  string      `json:"redirect_target,omitempty"`
	RedirectChain   []string    `json:"redirect_chain,omitempty"`
	Title           string      `json:"title,omitempty"`
	MetaDescription string      `json:"meta_description,omitempty"`
	MetaRobots      string      `json:"meta_robots,omitempty"`
	Canonical       string      `json:"canonical,omitempty"`
	Lang            string      `json:"lang,omitempty"`
	H1              []string    `json:"h1,omitempty"`
	Headings        []Heading   `json:"headings,omitempty"`
	Images          []Image     `json:"images,omitempty"`
	Links           Links       `json:"links"`
	LoadTimeMS      int64       `json:"load_time_ms"`
	PageSizeBytes   int64       `json:"page_size_bytes"`
	Headers         http.Header `json:"headers,omitempty"`
	Rendered        bool        `json:"rendered"`
	ContentHash     string      `json:"content_hash,omitempty"`
	BlobURI         string      `json:"blob_uri,omitempty"`
	FetchError      string      `json:"fetch_error,omitempty"`
	RenderedHTML    string      `json:"-"`
	BodyText        string      `json:"-"`
	WordCount       int         `json:"word_count"`
}

// Fetched reports whether the page produced an HTTP response.
func (p *PageRecord) Fetched() bool {
	return p.FetchError == "" && p.StatusCode > 0
}

// Severity ranks an issue.
type Severity string

// Severity levels.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue categories.
const (
	CategoryMetadata       = "metadata"
	CategoryContent        = "content"
	CategoryImages         = "images"
	CategoryAccessibility  = "accessibility"
	CategorySecurity       = "security"
	CategoryStructuredData = "structured_data"
	CategoryIndexability   = "indexability"
	CategoryLinks          = "links"
	CategoryFetch          = "fetch_error"
	CategoryAnalyzer       = "analyzer_error"
)

// Issue is one finding about one URL.
type Issue struct {
	URL          string   `json:"url"`
	Category     string   `json:"category"`
	Code         string   `json:"code"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// FrontierEntry is a URL waiting to be fetched.
type FrontierEntry struct {
	URL   string
	Depth int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID  string
	URL    string
	Depth  int
	Render RenderMode
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL           string
	FinalURL      string
	StatusCode    int
	Headers       http.Header
	Body          []byte
	Duration      time.Duration
	RedirectChain []string
	UsedHeadless  bool
	Attempts      int
}
