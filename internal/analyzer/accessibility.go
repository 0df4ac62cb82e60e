package analyzer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
)

type impact int

const (
	impactMinor impact = iota
	impactModerate
	impactSerious
	impactCritical
)

var (
	genericLinkRe    = regexp.MustCompile(`(?i)\b(click here|read more|learn more|here|link|more)\b`)
	skipLinkRe       = regexp.MustCompile(`(?i)^#(main|content)`)
	smallFontRe      = regexp.MustCompile(`font-size\s*:\s*(\d+)px`)
	unlabeledTypes   = map[string]bool{"hidden": true, "submit": true, "button": true, "image": true, "reset": true}
)

// Accessibility runs a subset of WCAG checks that need no rendering engine.
type Accessibility struct{}

// NewAccessibility returns the accessibility analyzer.
func NewAccessibility() *Accessibility { return &Accessibility{} }

// Name implements Analyzer.
func (*Accessibility) Name() string { return "accessibility" }

// Analyze implements Analyzer. Missing alt text, a missing title and
// repeated H1s lower the score but are reported by the image and metadata
// analyzers.
func (*Accessibility) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	doc, err := extract.Parse(page)
	if err != nil {
		return Result{}, fmt.Errorf("parse document: %w", err)
	}

	var (
		issues []crawler.Issue
		counts [4]int
	)
	add := func(level impact, code string, sev crawler.Severity, msg, fix string) {
		counts[level]++
		issues = append(issues, issue(page, crawler.CategoryAccessibility, code, sev, msg, fix))
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if s.AttrOr("alt", "") == "" && s.AttrOr("aria-label", "") == "" && s.AttrOr("aria-labelledby", "") == "" {
			counts[impactCritical]++
		}
	})

	doc.Find("input,select,textarea").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(s.AttrOr("type", "text"))
		if unlabeledTypes[typ] || labelled(doc, s) {
			return
		}
		add(impactSerious, "missing_form_label", crawler.SeverityError,
			fmt.Sprintf("Form %s[type=%s] has no label", goquery.NodeName(s), typ),
			"Add a label element or aria-label attribute")
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		text := extract.Clean(s.Text())
		if text == "" {
			if !accessibleName(s) {
				add(impactSerious, "empty_link_text", crawler.SeverityWarning,
					fmt.Sprintf("Link to %s has no text or accessible name", href),
					"Add visible text, an aria-label, or alt text on the linked image")
			}
			return
		}
		if len(text) < 20 && genericLinkRe.MatchString(text) {
			add(impactModerate, "generic_link_text", crawler.SeverityWarning,
				fmt.Sprintf("Non-descriptive link text: %q", text),
				"Use link text that makes sense out of context")
		}
	})

	if strings.TrimSpace(doc.Find("html").AttrOr("lang", "")) == "" {
		add(impactSerious, "missing_lang", crawler.SeverityWarning, "Page language not specified",
			`Add a lang attribute to the html element (e.g. lang="en")`)
	}

	if extract.Clean(doc.Find("title").First().Text()) == "" {
		counts[impactSerious]++
	}

	prev := 0
	for _, h := range page.Headings {
		if prev > 0 && h.Level > prev+1 {
			add(impactModerate, "heading_hierarchy_skip", crawler.SeverityWarning,
				fmt.Sprintf("Skipped heading level: h%d to h%d", prev, h.Level),
				"Keep heading levels sequential")
		}
		prev = h.Level
	}
	if len(page.H1) > 1 {
		counts[impactModerate]++
	}

	skip := doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return skipLinkRe.MatchString(s.AttrOr("href", ""))
	}).Length()
	landmarks := doc.Find("main,nav,aside,header,footer,[role=main],[role=navigation]").Length()
	if skip == 0 && landmarks == 0 {
		add(impactModerate, "missing_skip_link", crawler.SeverityInfo, "No skip link or landmark regions found",
			"Add a skip navigation link or use landmark elements")
	}

	doc.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := smallFontRe.FindStringSubmatch(s.AttrOr("style", ""))
		if m == nil {
			return true
		}
		if size, err := strconv.Atoi(m[1]); err == nil && size < 12 {
			add(impactMinor, "small_text", crawler.SeverityInfo, fmt.Sprintf("Very small text (%dpx)", size),
				"Use at least 12px text with sufficient contrast")
			return false
		}
		return true
	})

	score := 100 - 15*counts[impactCritical] - 10*counts[impactSerious] - 5*counts[impactModerate] - 2*counts[impactMinor]
	score = max(score, 0)
	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"score":           float64(score),
			"critical_issues": float64(counts[impactCritical]),
			"serious_issues":  float64(counts[impactSerious]),
		},
	}, nil
}

// AccessibilityGrade maps an accessibility score to a letter.
func AccessibilityGrade(score int) string {
	switch {
	case score >= 95:
		return "A"
	case score >= 85:
		return "B"
	case score >= 75:
		return "C"
	case score >= 65:
		return "D"
	default:
		return "F"
	}
}

func labelled(doc *goquery.Document, s *goquery.Selection) bool {
	for _, attr := range []string{"aria-label", "aria-labelledby", "placeholder", "title"} {
		if strings.TrimSpace(s.AttrOr(attr, "")) != "" {
			return true
		}
	}
	if id := s.AttrOr("id", ""); id != "" {
		found := doc.Find("label").FilterFunction(func(_ int, l *goquery.Selection) bool {
			return l.AttrOr("for", "") == id
		})
		if found.Length() > 0 {
			return true
		}
	}
	return s.ParentsFiltered("label").Length() > 0
}

// accessibleName reports whether an element without text content is still
// named for assistive technology.
func accessibleName(s *goquery.Selection) bool {
	for _, attr := range []string{"aria-label", "aria-labelledby", "title"} {
		if strings.TrimSpace(s.AttrOr(attr, "")) != "" {
			return true
		}
	}
	named := false
	s.Find("img[alt], svg title, [aria-label]").EachWithBreak(func(_ int, c *goquery.Selection) bool {
		name := c.AttrOr("alt", c.AttrOr("aria-label", c.Text()))
		named = strings.TrimSpace(name) != ""
		return !named
	})
	return named
}
