package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// filler returns n distinct tokens in ten-word sentences. Tokens carry
// digits so they never count as keywords.
func filler(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "w%d", i)
		if i%10 == 0 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestComputeReadabilitySimpleSentence(t *testing.T) {
	t.Parallel()

	r := ComputeReadability("The cat sat on the mat.")
	require.Equal(t, 6, r.WordCount)
	require.Equal(t, 1, r.SentenceCount)
	require.Equal(t, 6, r.SyllableCount)
	require.InDelta(t, 116.1, r.ReadingEase, 0.11)
	require.InDelta(t, -1.45, r.Grade, 0.11)
	require.Equal(t, "Very Easy (5th grade)", Interpretation(r.ReadingEase))

	empty := ComputeReadability("   ")
	require.Zero(t, empty.WordCount)
	require.Zero(t, empty.ReadingEase)
}

func TestSyllables(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"cat":       1,
		"table":     1,
		"cake":      1,
		"beautiful": 3,
		"rhythm":    1,
		"queue":     1,
		"crwth":     1,
	}
	for word, want := range tests {
		require.Equal(t, want, Syllables(word), word)
	}
}

func TestSentencesAndInterpretation(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"One", "Two", "Three"}, Sentences("One. Two?! Three..."))
	require.Equal(t, "Difficult (College)", Interpretation(35))
	require.Equal(t, "Very Difficult (College Graduate)", Interpretation(10))
}

func TestTopKeywords(t *testing.T) {
	t.Parallel()

	kws := TopKeywords("Shoes and boots. The shoes are red shoes; boots are warm. It is in", 3)
	require.Len(t, kws, 3)
	require.Equal(t, "shoes", kws[0].Keyword)
	require.Equal(t, 3, kws[0].Count)
	require.Equal(t, "boots", kws[1].Keyword)
	require.Equal(t, "red", kws[2].Keyword)
	require.InDelta(t, 3.0/14*100, kws[0].DensityPercent, 0.01)
	require.Nil(t, TopKeywords("", 5))
}

func contentPage(body string, headings []crawler.Heading) *crawler.PageRecord {
	return &crawler.PageRecord{
		URL:          "https://example.com/article",
		StatusCode:   200,
		RenderedHTML: "<html><body>" + body + "</body></html>",
		Headings:     headings,
	}
}

func TestContentIssues(t *testing.T) {
	t.Parallel()

	long := filler(400)
	stuffing := strings.Repeat("shoes ", 10) + filler(60)

	tests := []struct {
		name     string
		body     string
		headings []crawler.Heading
		want     []string
		absent   []string
	}{
		{
			name:   "thin",
			body:   "<p>The cat sat on the mat.</p>",
			want:   []string{"thin_content"},
			absent: []string{"missing_subheadings", "large_paragraph"},
		},
		{
			name:   "long without h2",
			body:   "<p>" + filler(160) + "</p><p>" + filler(240) + "</p>",
			want:   []string{"missing_subheadings", "large_paragraph"},
			absent: []string{"thin_content", "keyword_stuffing"},
		},
		{
			name:     "long with h2",
			body:     "<h2>Part</h2><div>" + long + "</div>",
			headings: []crawler.Heading{{Level: 2, Text: "Part"}},
			absent:   []string{"missing_subheadings", "large_paragraph", "thin_content"},
		},
		{
			name: "stuffed",
			body: "<div>" + stuffing + "</div>",
			want: []string{"keyword_stuffing", "thin_content"},
		},
		{
			name: "hard to read",
			body: "<p>Institutionalization internationalization characterization.</p>",
			want: []string{"poor_readability"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewContent(DefaultContentWeights()).Analyze(contentPage(tt.body, tt.headings))
			require.NoError(t, err)
			got := codes(res.Issues)
			for _, code := range tt.want {
				require.Contains(t, got, code)
			}
			for _, code := range tt.absent {
				require.NotContains(t, got, code)
			}
			for _, is := range res.Issues {
				require.Equal(t, crawler.CategoryContent, is.Category)
				require.NotEmpty(t, is.SuggestedFix)
			}
		})
	}
}

func TestContentScoreWeights(t *testing.T) {
	t.Parallel()

	thin := contentPage("<p>The cat sat on the mat.</p>", nil)
	rich := contentPage("<h2>Part</h2><div>"+filler(1200)+"</div>", []crawler.Heading{{Level: 1, Text: "Title"}, {Level: 2, Text: "Part"}})
	rich.H1 = []string{"Title"}
	rich.Title = strings.Repeat("t", 40)

	analyzer := NewContent(DefaultContentWeights())
	thinRes, err := analyzer.Analyze(thin)
	require.NoError(t, err)
	richRes, err := analyzer.Analyze(rich)
	require.NoError(t, err)
	require.Less(t, thinRes.Metrics["content_score"], richRes.Metrics["content_score"])

	// thin: 50 base + 10 readability + 5 no images - 15 thin
	require.Equal(t, 50.0, thinRes.Metrics["content_score"])

	flat, err := NewContent(ContentWeights{Base: 77}).Analyze(rich)
	require.NoError(t, err)
	require.Equal(t, 77.0, flat.Metrics["content_score"])

	clamped, err := NewContent(ContentWeights{Base: 500}).Analyze(thin)
	require.NoError(t, err)
	require.Equal(t, 100.0, clamped.Metrics["content_score"])
}
