package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Length bounds for titles and meta descriptions, in characters.
const (
	TitleMin = 30
	TitleMax = 60
	MetaMin  = 120
	MetaMax  = 160
)

// Metadata checks title, meta description, H1 and canonical tags.
type Metadata struct{}

// NewMetadata returns the metadata analyzer.
func NewMetadata() *Metadata { return &Metadata{} }

// Name implements Analyzer.
func (*Metadata) Name() string { return "metadata" }

// Analyze implements Analyzer.
func (*Metadata) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	var issues []crawler.Issue
	add := func(code string, sev crawler.Severity, msg, fix string) {
		issues = append(issues, issue(page, crawler.CategoryMetadata, code, sev, msg, fix))
	}

	titleLen := utf8.RuneCountInString(page.Title)
	switch {
	case titleLen == 0:
		add("missing_title", crawler.SeverityError, "Missing title tag",
			"Add a descriptive title tag (50-60 characters)")
	case titleLen < TitleMin:
		add("title_too_short", crawler.SeverityWarning, fmt.Sprintf("Title too short (%d characters)", titleLen),
			fmt.Sprintf("Expand title to 50-60 characters (currently %d)", titleLen))
	case titleLen > TitleMax:
		add("title_too_long", crawler.SeverityWarning, fmt.Sprintf("Title may be truncated in search results (%d characters)", titleLen),
			fmt.Sprintf("Shorten title to under %d characters (currently %d)", TitleMax, titleLen))
	}

	metaLen := utf8.RuneCountInString(strings.TrimSpace(page.MetaDescription))
	switch {
	case metaLen == 0:
		add("missing_meta_description", crawler.SeverityWarning, "Missing meta description",
			"Add a compelling meta description (150-160 characters)")
	case metaLen < MetaMin:
		add("meta_description_too_short", crawler.SeverityInfo, fmt.Sprintf("Meta description too short (%d characters)", metaLen),
			fmt.Sprintf("Expand to 150-160 characters (currently %d)", metaLen))
	case metaLen > MetaMax:
		add("meta_description_too_long", crawler.SeverityWarning, fmt.Sprintf("Meta description too long (%d characters)", metaLen),
			fmt.Sprintf("Shorten to under %d characters (currently %d)", MetaMax, metaLen))
	}

	switch len(page.H1) {
	case 0:
		add("missing_h1", crawler.SeverityError, "Missing H1 heading",
			"Add one H1 heading that describes the main topic")
	case 1:
	default:
		add("multiple_h1", crawler.SeverityWarning, fmt.Sprintf("Multiple H1 headings (%d)", len(page.H1)),
			"Use only one H1 per page")
	}

	if page.Canonical == "" {
		add("missing_canonical", crawler.SeverityInfo, "Missing canonical link",
			`Add <link rel="canonical"> pointing at the preferred URL`)
	}

	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"title_length":            float64(titleLen),
			"meta_description_length": float64(metaLen),
			"h1_count":                float64(len(page.H1)),
		},
	}, nil
}

// Duplicates flags titles and meta descriptions shared by more than one
// successfully fetched page. Issues follow the order of pages.
func Duplicates(pages []*crawler.PageRecord) []crawler.Issue {
	titles := map[string]int{}
	metas := map[string]int{}
	for _, p := range pages {
		if !hasDocument(p) {
			continue
		}
		if key := dupKey(p.Title); key != "" {
			titles[key]++
		}
		if key := dupKey(p.MetaDescription); key != "" {
			metas[key]++
		}
	}

	var out []crawler.Issue
	for _, p := range pages {
		if !hasDocument(p) {
			continue
		}
		if n := titles[dupKey(p.Title)]; n > 1 {
			out = append(out, issue(p, crawler.CategoryMetadata, "duplicate_title", crawler.SeverityWarning,
				fmt.Sprintf("Title shared with %d other page(s)", n-1),
				"Give every page a unique title"))
		}
		if n := metas[dupKey(p.MetaDescription)]; n > 1 {
			out = append(out, issue(p, crawler.CategoryMetadata, "duplicate_meta_description", crawler.SeverityWarning,
				fmt.Sprintf("Meta description shared with %d other page(s)", n-1),
				"Write a unique meta description for every page"))
		}
	}
	return out
}

func dupKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
