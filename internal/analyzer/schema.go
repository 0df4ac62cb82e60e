package analyzer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
)

type schemaFields struct {
	required    []string
	recommended []string
}

var schemaRequirements = map[string]schemaFields{
	"Article":        {[]string{"headline", "author"}, []string{"datePublished", "dateModified", "image", "publisher"}},
	"Product":        {[]string{"name", "offers"}, []string{"image", "description", "sku", "brand", "aggregateRating", "review"}},
	"Organization":   {[]string{"name"}, []string{"url", "logo", "sameAs", "contactPoint"}},
	"WebSite":        {[]string{"url", "name"}, []string{"potentialAction", "description"}},
	"LocalBusiness":  {[]string{"name", "address"}, []string{"telephone", "url", "openingHours", "geo", "image"}},
	"BreadcrumbList": {[]string{"itemListElement"}, nil},
	"FAQPage":        {[]string{"mainEntity"}, nil},
	"HowTo":          {[]string{"name", "step"}, []string{"image", "totalTime", "estimatedCost"}},
}

var (
	productSelectors    = ".product, [data-product], .woocommerce-product"
	breadcrumbSelectors = `.breadcrumb, .breadcrumbs, [typeof="BreadcrumbList"], .yoast-breadcrumbs, .rank-math-breadcrumb`
	faqRe               = regexp.MustCompile(`(?i)\bFAQ\b|\bFrequently Asked Questions\b`)
	localRe             = regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b|\d+\s+[\w\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd)\b`)
)

// Schema validates JSON-LD blocks and hints at schema types the page content
// suggests but does not declare.
type Schema struct{}

// NewSchema returns the structured data analyzer.
func NewSchema() *Schema { return &Schema{} }

// Name implements Analyzer.
func (*Schema) Name() string { return "structured_data" }

// Analyze implements Analyzer.
func (*Schema) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	doc, err := extract.Parse(page)
	if err != nil {
		return Result{}, fmt.Errorf("parse document: %w", err)
	}
	var issues []crawler.Issue
	add := func(code string, sev crawler.Severity, msg, fix string) {
		issues = append(issues, issue(page, crawler.CategoryStructuredData, code, sev, msg, fix))
	}

	found := map[string]bool{}
	blocks, malformed, valid := 0, 0, 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("type", "")), "application/ld+json") {
			return
		}
		blocks++
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			malformed++
			add("malformed_json_ld", crawler.SeverityError, fmt.Sprintf("Malformed JSON-LD block: %v", err),
				"Validate the block with a JSON-LD linter")
			return
		}
		for _, entity := range Entities(data) {
			types := entityTypes(entity)
			ok := true
			for _, typ := range types {
				found[typ] = true
				req, known := schemaRequirements[typ]
				if !known {
					continue
				}
				for _, field := range req.required {
					if empty(entity[field]) {
						ok = false
						add("schema_missing_required_field", crawler.SeverityError,
							fmt.Sprintf("%s schema missing required field %q", typ, field),
							fmt.Sprintf("Add %q to the %s markup", field, typ))
					}
				}
				for _, field := range req.recommended {
					if empty(entity[field]) {
						add("schema_missing_recommended_field", crawler.SeverityInfo,
							fmt.Sprintf("%s schema missing recommended field %q", typ, field),
							fmt.Sprintf("Consider adding %q to the %s markup", field, typ))
					}
				}
			}
			if ok {
				valid++
			}
		}
	})

	for _, typ := range suggestedTypes(doc, page) {
		if !found[typ] {
			add("missing_structured_data", crawler.SeverityInfo,
				fmt.Sprintf("Page content suggests %s markup but none was found", typ),
				fmt.Sprintf("Add %s JSON-LD", typ))
		}
	}

	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"blocks":         float64(blocks),
			"malformed":      float64(malformed),
			"valid_entities": float64(valid),
			"types":          float64(len(found)),
		},
	}, nil
}

// Entities flattens a decoded JSON-LD value into its top-level objects,
// expanding arrays and @graph containers.
func Entities(data any) []map[string]any {
	switch v := data.(type) {
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, Entities(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := v["@graph"]; ok {
			return Entities(graph)
		}
		return []map[string]any{v}
	default:
		return nil
	}
}

func entityTypes(entity map[string]any) []string {
	switch t := entity["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// suggestedTypes lists schema types the page content implies.
func suggestedTypes(doc *goquery.Document, page *crawler.PageRecord) []string {
	var out []string
	if isHomepage(page.URL) {
		out = append(out, "Organization", "WebSite")
	}
	if doc.Find("article").Length() > 0 {
		out = append(out, "Article")
	}
	if doc.Find(productSelectors).Length() > 0 {
		out = append(out, "Product")
	}
	if crumbs := doc.Find(breadcrumbSelectors).First(); crumbs.Find("a").Length() > 1 {
		out = append(out, "BreadcrumbList")
	}
	text := page.BodyText
	if text == "" {
		text = extract.VisibleText(doc)
	}
	if faqRe.MatchString(text) {
		out = append(out, "FAQPage")
	}
	if localRe.MatchString(text) {
		out = append(out, "LocalBusiness")
	}
	return out
}

func isHomepage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery == ""
}
