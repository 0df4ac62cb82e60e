package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

const (
	// Targets are matched in the opening words of the body as well as in
	// title, H1 and meta description.
	openingWords       = 100
	fallbackKeywords   = 5
	maxPriorityActions = 5
	underusedDensity   = 0.5
	hardReadingEase    = 50.0
	lowInternalLinks   = 3
	longContentWords   = 500
)

// Suggestion priorities, highest first.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// KeywordPlacement reports how often a keyword occurs and where.
type KeywordPlacement struct {
	Keyword           string  `json:"keyword"`
	Count             int     `json:"count"`
	DensityPercent    float64 `json:"density_percent"`
	InTitle           bool    `json:"in_title"`
	InH1              bool    `json:"in_h1"`
	InMetaDescription bool    `json:"in_meta_description"`
	InFirst100Words   bool    `json:"in_first_100_words"`
}

// ContentQuality summarises the structural content checks.
type ContentQuality struct {
	ThinContent        bool     `json:"thin_content"`
	KeywordStuffing    bool     `json:"keyword_stuffing"`
	LargeParagraphs    []string `json:"large_paragraphs,omitempty"`
	MissingSubheadings bool     `json:"missing_subheadings"`
}

// Suggestion is one actionable recommendation.
type Suggestion struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
	Impact         string `json:"impact"`
	CurrentValue   string `json:"current_value,omitempty"`
}

// Optimization is the content review of a single page.
type Optimization struct {
	URL                string             `json:"url"`
	Title              string             `json:"title"`
	MetaDescription    string             `json:"meta_description"`
	H1                 string             `json:"h1"`
	WordCount          int                `json:"word_count"`
	Readability        Readability        `json:"readability"`
	ReadingLevel       string             `json:"reading_level"`
	Keywords           []KeywordPlacement `json:"keywords"`
	Quality            ContentQuality     `json:"quality"`
	Suggestions        []Suggestion       `json:"suggestions"`
	Score              int                `json:"score"`
	PrioritizedActions []string           `json:"prioritized_actions"`
}

// Optimize reviews one fetched page against the target keywords. Without
// targets the page's most frequent terms are reported instead.
func Optimize(page *crawler.PageRecord, targets []string, weights ContentWeights) (Optimization, error) {
	if !hasDocument(page) {
		return Optimization{}, fmt.Errorf("no document to review for %s (HTTP %d)", page.URL, page.StatusCode)
	}
	st, err := measureContent(page)
	if err != nil {
		return Optimization{}, err
	}

	h1 := ""
	if len(page.H1) > 0 {
		h1 = page.H1[0]
	}
	if len(targets) == 0 {
		for _, kw := range TopKeywords(st.text, fallbackKeywords) {
			targets = append(targets, kw.Keyword)
		}
	}
	placements := PlaceKeywords(st.text, page.Title, h1, page.MetaDescription, targets)

	densities := make([]KeywordDensity, 0, len(placements))
	var stuffed []KeywordDensity
	for _, p := range placements {
		kd := KeywordDensity{Keyword: p.Keyword, Count: p.Count, DensityPercent: p.DensityPercent}
		densities = append(densities, kd)
		if kd.DensityPercent > StuffingDensity {
			stuffed = append(stuffed, kd)
		}
	}
	quality := ContentQuality{
		ThinContent:        st.thin(),
		KeywordStuffing:    len(stuffed) > 0 || len(st.stuffed) > 0,
		MissingSubheadings: st.missingSubheadings(),
	}
	for _, p := range st.large {
		quality.LargeParagraphs = append(quality.LargeParagraphs, preview(p, 100))
	}

	c := NewContent(weights)
	out := Optimization{
		URL:             page.URL,
		Title:           page.Title,
		MetaDescription: page.MetaDescription,
		H1:              h1,
		WordCount:       st.read.WordCount,
		Readability:     st.read,
		ReadingLevel:    Interpretation(st.read.ReadingEase),
		Keywords:        placements,
		Quality:         quality,
		Score:           c.score(page, st.read, densities, stuffed, quality.ThinContent, quality.MissingSubheadings),
	}
	out.Suggestions = suggest(page, h1, st, quality, placements)
	for i, s := range out.Suggestions {
		if i == maxPriorityActions {
			break
		}
		out.PrioritizedActions = append(out.PrioritizedActions, s.Recommendation)
	}
	return out, nil
}

// PlaceKeywords counts whole-phrase, case-insensitive occurrences of each
// keyword in text and checks where else it appears.
func PlaceKeywords(text, title, h1, meta string, keywords []string) []KeywordPlacement {
	lower := strings.ToLower(text)
	words := wordRe.FindAllString(lower, -1)
	if len(words) == 0 {
		return nil
	}
	opening := strings.Join(words[:min(openingWords, len(words))], " ")
	out := make([]KeywordPlacement, 0, len(keywords))
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		n := len(re.FindAllStringIndex(lower, -1))
		out = append(out, KeywordPlacement{
			Keyword:           kw,
			Count:             n,
			DensityPercent:    math.Round(float64(n)/float64(len(words))*10000) / 100,
			InTitle:           strings.Contains(strings.ToLower(title), k),
			InH1:              strings.Contains(strings.ToLower(h1), k),
			InMetaDescription: strings.Contains(strings.ToLower(meta), k),
			InFirst100Words:   re.MatchString(opening),
		})
	}
	return out
}

func suggest(page *crawler.PageRecord, h1 string, st contentStats, q ContentQuality, placements []KeywordPlacement) []Suggestion {
	var out []Suggestion
	add := func(category, priority, issue, rec, impact, current string) {
		out = append(out, Suggestion{
			Category:       category,
			Priority:       priority,
			Issue:          issue,
			Recommendation: rec,
			Impact:         impact,
			CurrentValue:   current,
		})
	}

	switch n := utf8.RuneCountInString(page.Title); {
	case n == 0:
		add("title", PriorityHigh, "Missing title tag", "Add a descriptive title tag (50-60 characters)",
			"Critical for SEO and click-through rates", "")
	case n < TitleMin:
		add("title", PriorityMedium, "Title too short",
			fmt.Sprintf("Expand title to 50-60 characters (currently %d)", n),
			"Better keyword targeting and CTR", page.Title)
	case n > TitleMax:
		add("title", PriorityLow, "Title may be truncated in SERP",
			fmt.Sprintf("Shorten title to under %d characters (currently %d)", TitleMax, n),
			"Full title visible in search results", page.Title)
	}

	switch n := utf8.RuneCountInString(page.MetaDescription); {
	case n == 0:
		add("meta", PriorityMedium, "Missing meta description",
			"Add a compelling meta description (150-160 characters)",
			"Improves click-through rate from search results", "")
	case n < MetaMin:
		add("meta", PriorityLow, "Meta description could be more descriptive",
			fmt.Sprintf("Expand to 150-160 characters (currently %d)", n),
			"More context for users in search results", preview(page.MetaDescription, 50))
	}

	if h1 == "" {
		add("headings", PriorityHigh, "Missing H1 heading", "Add one H1 heading that describes the main topic",
			"Critical for SEO and content structure", "")
	}
	if q.ThinContent {
		add("content", PriorityHigh, "Thin content detected",
			fmt.Sprintf("Expand content to at least %d words (currently %d)", ThinContentWords, st.read.WordCount),
			"Better rankings and user engagement", "")
	}
	if q.MissingSubheadings {
		add("headings", PriorityMedium, "Long content without subheadings",
			"Add H2 subheadings every 300 words to improve readability",
			"Better user experience and SEO structure", "")
	}
	if len(q.LargeParagraphs) > 0 {
		add("content", PriorityMedium, fmt.Sprintf("%d large paragraphs detected", len(q.LargeParagraphs)),
			"Break paragraphs into 2-4 sentences for better readability",
			"Improved readability and engagement", "")
	}
	if st.read.SentenceCount > 0 && st.read.ReadingEase < hardReadingEase {
		add("content", PriorityMedium, "Content may be too difficult to read",
			"Simplify language, use shorter sentences, avoid jargon",
			"Better engagement and broader audience reach", fmt.Sprintf("%.1f", st.read.ReadingEase))
	}

	for _, kw := range placements {
		switch {
		case kw.DensityPercent > StuffingDensity:
			add("content", PriorityHigh, fmt.Sprintf("Possible keyword stuffing: %q", kw.Keyword),
				fmt.Sprintf("Reduce keyword usage from %.2f%% to under 2%%", kw.DensityPercent),
				"Avoid search engine penalties", "")
		case kw.DensityPercent < underusedDensity && kw.InTitle:
			add("content", PriorityMedium, fmt.Sprintf("Target keyword %q underused in content", kw.Keyword),
				"Include keyword naturally in first 100 words and throughout content",
				"Better keyword relevance signals", "")
		}
		if !kw.InFirst100Words && kw.InTitle {
			add("content", PriorityMedium, fmt.Sprintf("Keyword %q not in first 100 words", kw.Keyword),
				"Include the keyword early in the content", "Stronger topical relevance signal", "")
		}
	}

	missingAlt := 0
	for _, img := range page.Images {
		if strings.TrimSpace(img.Alt) == "" {
			missingAlt++
		}
	}
	if missingAlt > 0 {
		add("images", PriorityMedium, fmt.Sprintf("%d images missing alt text", missingAlt),
			"Add descriptive alt text to all images", "Better accessibility and image SEO", "")
	}
	if len(page.Links.Internal) < lowInternalLinks && st.read.WordCount > longContentWords {
		add("internal_links", PriorityMedium, "Low internal linking",
			"Add 3-5 relevant internal links to related content",
			"Better site structure and PageRank distribution", "")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}

func priorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}
