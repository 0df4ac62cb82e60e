package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
	wordRe          = regexp.MustCompile(`\b\w+\b`)
	alphaWordRe     = regexp.MustCompile(`\b[a-z]+\b`)
)

// Readability holds the Flesch measures of a text.
type Readability struct {
	WordCount           int     `json:"word_count"`
	SentenceCount       int     `json:"sentence_count"`
	SyllableCount       int     `json:"syllable_count"`
	ComplexWords        int     `json:"complex_words"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
	ReadingEase         float64 `json:"flesch_reading_ease"`
	Grade               float64 `json:"flesch_kincaid_grade"`
	ReadingTimeMinutes  float64 `json:"reading_time_minutes"`
}

// Words tokenizes text the way every readability measure counts it.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// Sentences splits on runs of terminal punctuation, dropping empty parts.
func Sentences(text string) []string {
	var out []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ComputeReadability scores text. Scores stay zero when the text has no
// words or no sentences.
func ComputeReadability(text string) Readability {
	words := Words(text)
	r := Readability{WordCount: len(words), SentenceCount: len(Sentences(text))}
	if r.WordCount == 0 || r.SentenceCount == 0 {
		return r
	}
	for _, w := range words {
		n := Syllables(w)
		r.SyllableCount += n
		if n >= 3 {
			r.ComplexWords++
		}
	}
	wps := float64(r.WordCount) / float64(r.SentenceCount)
	spw := float64(r.SyllableCount) / float64(r.WordCount)
	r.AvgWordsPerSentence = round1(wps)
	r.ReadingEase = round1(206.835 - 1.015*wps - 84.6*spw)
	r.Grade = round1(0.39*wps + 11.8*spw - 15.59)
	r.ReadingTimeMinutes = round1(float64(r.WordCount) / 200)
	return r
}

// Syllables estimates syllables by counting vowel groups.
func Syllables(word string) int {
	word = strings.ToLower(word)
	if len(word) <= 3 {
		return 1
	}
	word = strings.TrimSuffix(word, "e")
	count := 0
	prevVowel := false
	for _, c := range word {
		vowel := strings.ContainsRune("aeiouy", c)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	return max(count, 1)
}

// Interpretation describes a reading ease score.
func Interpretation(score float64) string {
	switch {
	case score >= 90:
		return "Very Easy (5th grade)"
	case score >= 80:
		return "Easy (6th grade)"
	case score >= 70:
		return "Fairly Easy (7th grade)"
	case score >= 60:
		return "Standard (8th-9th grade)"
	case score >= 50:
		return "Fairly Difficult (10th-12th grade)"
	case score >= 30:
		return "Difficult (College)"
	default:
		return "Very Difficult (College Graduate)"
	}
}

// KeywordDensity is one frequent term and its share of the text.
type KeywordDensity struct {
	Keyword        string  `json:"keyword"`
	Count          int     `json:"count"`
	DensityPercent float64 `json:"density_percent"`
}

var stopwords = toSet(`the a an is are was were be been being have has had do does did will would could
should may might must shall can need dare ought used to of in for on with at by from as into through
during before after above below between under and but or yet so if because although though while
where when that which who whom whose what this these those i you he she it we they me him her us them
my your his its our their mine yours hers ours theirs myself yourself himself herself itself
ourselves yourselves themselves`)

// TopKeywords returns the n most frequent non-stopword terms longer than two
// letters. Density is relative to every word of the text. Ties break
// alphabetically.
func TopKeywords(text string, n int) []KeywordDensity {
	lower := strings.ToLower(text)
	total := len(wordRe.FindAllString(lower, -1))
	if total == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, w := range alphaWordRe.FindAllString(lower, -1) {
		if len(w) > 2 && !stopwords[w] {
			counts[w]++
		}
	}
	out := make([]KeywordDensity, 0, len(counts))
	for w, c := range counts {
		out = append(out, KeywordDensity{
			Keyword:        w,
			Count:          c,
			DensityPercent: math.Round(float64(c)/float64(total)*10000) / 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func toSet(words string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
