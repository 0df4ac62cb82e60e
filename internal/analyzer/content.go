package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/extract"
)

// Content thresholds.
const (
	ThinContentWords     = 300
	LargeParagraphWords  = 150
	StuffingDensity      = 5.0
	PoorReadabilityScore = 30.0
	// Below this many words a single repeated term says nothing about stuffing.
	stuffingMinWords  = 50
	maxParagraphNotes = 3
)

// Content scores readability and content quality.
type Content struct {
	weights ContentWeights
}

// NewContent returns the content analyzer with the given score weights.
func NewContent(weights ContentWeights) *Content {
	return &Content{weights: weights}
}

// Name implements Analyzer.
func (*Content) Name() string { return "content" }

// Analyze implements Analyzer.
func (c *Content) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	st, err := measureContent(page)
	if err != nil {
		return Result{}, err
	}
	read, large, stuffed := st.read, st.large, st.stuffed

	var issues []crawler.Issue
	add := func(code string, sev crawler.Severity, msg, fix string) {
		issues = append(issues, issue(page, crawler.CategoryContent, code, sev, msg, fix))
	}
	thin := st.thin()
	if thin {
		add("thin_content", crawler.SeverityWarning, fmt.Sprintf("Thin content (%d words)", read.WordCount),
			fmt.Sprintf("Expand content to at least %d words (currently %d)", ThinContentWords, read.WordCount))
	}
	for i, p := range large {
		if i == maxParagraphNotes {
			break
		}
		add("large_paragraph", crawler.SeverityInfo, fmt.Sprintf("Large paragraph: %q", preview(p, 100)),
			"Break paragraphs into 2-4 sentences for better readability")
	}
	missingSub := st.missingSubheadings()
	if missingSub {
		add("missing_subheadings", crawler.SeverityWarning, "Long content without H2 subheadings",
			"Add H2 subheadings every 300 words to improve readability")
	}
	for _, kw := range stuffed {
		add("keyword_stuffing", crawler.SeverityWarning,
			fmt.Sprintf("Possible keyword stuffing: %q at %.2f%%", kw.Keyword, kw.DensityPercent),
			fmt.Sprintf("Reduce usage of %q to under 2%%", kw.Keyword))
	}
	if read.SentenceCount > 0 && read.WordCount > 0 && read.ReadingEase < PoorReadabilityScore {
		add("poor_readability", crawler.SeverityInfo,
			fmt.Sprintf("Reading ease %.1f: %s", read.ReadingEase, Interpretation(read.ReadingEase)),
			"Simplify language, use shorter sentences, avoid jargon")
	}

	score := c.score(page, read, st.keywords, stuffed, thin, missingSub)
	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"word_count":           float64(read.WordCount),
			"sentence_count":       float64(read.SentenceCount),
			"syllable_count":       float64(read.SyllableCount),
			"complex_words":        float64(read.ComplexWords),
			"flesch_reading_ease":  read.ReadingEase,
			"flesch_kincaid_grade": read.Grade,
			"reading_time_minutes": read.ReadingTimeMinutes,
			"large_paragraphs":     float64(len(large)),
			"content_score":        float64(score),
		},
	}, nil
}

// contentStats are the text measurements shared by the page analyzer and the
// single-page optimizer.
type contentStats struct {
	text     string
	read     Readability
	keywords []KeywordDensity
	stuffed  []KeywordDensity
	large    []string
	h2       int
}

func (s contentStats) thin() bool { return s.read.WordCount < ThinContentWords }

func (s contentStats) missingSubheadings() bool {
	return s.read.WordCount > ThinContentWords && s.h2 == 0
}

func measureContent(page *crawler.PageRecord) (contentStats, error) {
	doc, err := extract.Parse(page)
	if err != nil {
		return contentStats{}, fmt.Errorf("parse document: %w", err)
	}
	st := contentStats{text: page.BodyText}
	if st.text == "" {
		st.text = extract.VisibleText(doc)
	}
	st.read = ComputeReadability(st.text)
	st.keywords = TopKeywords(st.text, 10)
	if st.read.WordCount >= stuffingMinWords {
		for _, kw := range st.keywords {
			if kw.DensityPercent > StuffingDensity {
				st.stuffed = append(st.stuffed, kw)
			}
		}
	}
	for _, h := range page.Headings {
		if h.Level == 2 {
			st.h2++
		}
	}
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		p := extract.Clean(s.Text())
		if len(strings.Fields(p)) > LargeParagraphWords {
			st.large = append(st.large, p)
		}
	})
	return st, nil
}

// score starts at the base weight and adds the configured weight for each
// content signal the page meets.
func (c *Content) score(page *crawler.PageRecord, read Readability, keywords, stuffed []KeywordDensity, thin, missingSub bool) int {
	w := c.weights
	score := w.Base

	switch {
	case read.WordCount >= 1000:
		score += w.Words1000
	case read.WordCount >= 500:
		score += w.Words500
	case read.WordCount >= 300:
		score += w.Words300
	}

	titleLen := utf8.RuneCountInString(page.Title)
	switch {
	case titleLen >= TitleMin && titleLen <= TitleMax:
		score += w.TitleIdeal
	case titleLen > 0:
		score += w.TitlePresent
	}
	if n := utf8.RuneCountInString(page.MetaDescription); n >= MetaMin && n <= MetaMax {
		score += w.MetaIdeal
	}
	if len(page.H1) > 0 {
		score += w.H1
	}

	if read.SentenceCount > 0 {
		switch {
		case read.ReadingEase >= 60:
			score += w.ReadabilityGood
		case read.ReadingEase >= 40:
			score += w.ReadabilityFair
		}
	}

	if len(page.Images) == 0 {
		score += w.AltText
	} else {
		withAlt := 0
		for _, img := range page.Images {
			if img.Alt != "" {
				withAlt++
			}
		}
		score += w.AltText * withAlt / len(page.Images)
	}

	switch n := len(page.Links.Internal); {
	case n >= 3:
		score += w.InternalLinksMany
	case n >= 1:
		score += w.InternalLinksSome
	}

	good := 0
	for _, kw := range keywords {
		if kw.DensityPercent >= 0.5 && kw.DensityPercent <= 2.5 {
			good++
		}
	}
	score += min(w.KeywordMax, good*w.KeywordEach)
	score += len(stuffed) * w.StuffedKeyword

	if thin {
		score += w.ThinContent
	}
	if len(stuffed) > 0 {
		score += w.Stuffing
	}
	if missingSub && read.WordCount > 500 {
		score += w.MissingSubheadings
	}
	return max(0, min(100, score))
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
