package competitive

import (
	"net/url"
	"strings"
)

// Ranking is one keyword a domain ranks for.
type Ranking struct {
	Keyword      string  `json:"keyword" yaml:"keyword"`
	Position     int     `json:"position" yaml:"position"`
	SearchVolume int64   `json:"search_volume" yaml:"search_volume"`
	CPC          float64 `json:"cpc" yaml:"cpc"`
	Competition  float64 `json:"competition,omitempty" yaml:"competition"`
	URL          string  `json:"url,omitempty" yaml:"url"`
}

// Ranked reports whether the entry holds a real SERP position.
func (r Ranking) Ranked() bool {
	return r.Position > 0
}

// EstimatedTraffic is the monthly clicks the ranking is worth.
func (r Ranking) EstimatedTraffic() int64 {
	return int64(EstimatedCTR(r.Position) * float64(r.SearchVolume))
}

// Rankings maps a normalized keyword to its ranking.
type Rankings map[string]Ranking

// NewRankings indexes rows by normalized keyword. A later row for the same
// keyword wins only if it ranks better.
func NewRankings(rows []Ranking) Rankings {
	out := make(Rankings, len(rows))
	for _, r := range rows {
		key := NormalizeKeyword(r.Keyword)
		if key == "" {
			continue
		}
		if prev, ok := out[key]; ok && prev.Ranked() && (!r.Ranked() || prev.Position <= r.Position) {
			continue
		}
		r.Keyword = key
		out[key] = r
	}
	return out
}

// Filter keeps only the given keywords. An empty list keeps everything.
func (r Rankings) Filter(keywords []string) Rankings {
	if len(keywords) == 0 {
		return r
	}
	out := make(Rankings, len(keywords))
	for _, kw := range keywords {
		key := NormalizeKeyword(kw)
		if row, ok := r[key]; ok {
			out[key] = row
		}
	}
	return out
}

// NormalizeKeyword lowercases kw and collapses internal whitespace.
func NormalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}

// NormalizeDomain reduces a domain or URL to a bare lowercase host without
// a leading "www.".
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// EstimatedCTR is the share of searchers expected to click a result at
// position. Unranked positions (zero or negative) earn nothing.
func EstimatedCTR(position int) float64 {
	switch {
	case position <= 0:
		return 0
	case position == 1:
		return 0.28
	case position == 2:
		return 0.15
	case position == 3:
		return 0.09
	case position == 4:
		return 0.06
	case position == 5:
		return 0.04
	case position <= 7:
		return 0.03
	case position <= 10:
		return 0.02
	case position <= 20:
		return 0.01
	default:
		return 0.005
	}
}
