package competitive

import (
	"cmp"
	"slices"
)

// KeywordTraffic is a keyword with the clicks it is estimated to bring.
type KeywordTraffic struct {
	Ranking
	EstimatedTraffic int64 `json:"estimated_traffic"`
}

// Overview summarises how visible one domain is.
type Overview struct {
	Domain            string           `json:"domain"`
	TotalKeywords     int              `json:"total_keywords"`
	Top3              int              `json:"top_3"`
	Top10             int              `json:"top_10"`
	TotalSearchVolume int64            `json:"total_search_volume"`
	EstimatedTraffic  int64            `json:"estimated_traffic"`
	AveragePosition   float64          `json:"average_position"`
	TopKeywords       []KeywordTraffic `json:"top_keywords"`
}

// CompetitorOverview totals a domain's rankings and lists the topN keywords by
// estimated traffic.
func CompetitorOverview(domain string, rankings Rankings, topN int) Overview {
	ov := Overview{Domain: domain, TopKeywords: []KeywordTraffic{}}
	var posSum int
	all := make([]KeywordTraffic, 0, len(rankings))
	for _, r := range rankings {
		if !r.Ranked() {
			continue
		}
		ov.TotalKeywords++
		if r.Position <= 3 {
			ov.Top3++
		}
		if r.Position <= 10 {
			ov.Top10++
		}
		posSum += r.Position
		ov.TotalSearchVolume += r.SearchVolume
		traffic := r.EstimatedTraffic()
		ov.EstimatedTraffic += traffic
		all = append(all, KeywordTraffic{Ranking: r, EstimatedTraffic: traffic})
	}
	if ov.TotalKeywords > 0 {
		ov.AveragePosition = round2(float64(posSum) / float64(ov.TotalKeywords))
	}
	slices.SortFunc(all, func(a, b KeywordTraffic) int {
		if c := cmp.Compare(b.EstimatedTraffic, a.EstimatedTraffic); c != 0 {
			return c
		}
		return cmp.Compare(a.Keyword, b.Keyword)
	})
	if topN > 0 && len(all) > topN {
		all = all[:topN]
	}
	ov.TopKeywords = append(ov.TopKeywords, all...)
	return ov
}
