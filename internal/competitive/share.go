package competitive

import (
	"cmp"
	"math"
	"slices"
)

// DomainRankings pairs a domain with its rankings.
type DomainRankings struct {
	Domain   string
	Rankings Rankings
}

// DomainShare is one domain's slice of the visibility pie.
type DomainShare struct {
	Domain           string  `json:"domain"`
	Visibility       float64 `json:"visibility"`
	Share            float64 `json:"share"`
	WeightedPosition float64 `json:"weighted_position"`
	RankedKeywords   int     `json:"ranked_keywords"`
	SearchVolume     int64   `json:"search_volume"`
	EstimatedTraffic int64   `json:"estimated_traffic"`
}

// ShareOfVoiceResult is the normalized visibility of a set of domains.
type ShareOfVoiceResult struct {
	Domains         []DomainShare `json:"domains"`
	TotalVisibility float64       `json:"total_visibility"`
	Keywords        []string      `json:"keywords,omitempty"`
}

// ShareOfVoice computes visibility(d) = Σ ctr(position) × volume over the
// keywords d ranks for and expresses it as a percentage of the total. When
// every domain has zero visibility every share is zero. A non-empty keyword
// list restricts the computation to those keywords.
func ShareOfVoice(domains []DomainRankings, keywords []string) ShareOfVoiceResult {
	res := ShareOfVoiceResult{Domains: make([]DomainShare, 0, len(domains))}
	for _, kw := range keywords {
		if key := NormalizeKeyword(kw); key != "" {
			res.Keywords = append(res.Keywords, key)
		}
	}

	for _, d := range domains {
		share := DomainShare{Domain: d.Domain}
		var posVolume, volume float64
		var posSum int
		for _, r := range d.Rankings.Filter(res.Keywords) {
			if !r.Ranked() {
				continue
			}
			share.RankedKeywords++
			share.SearchVolume += r.SearchVolume
			share.EstimatedTraffic += r.EstimatedTraffic()
			share.Visibility += EstimatedCTR(r.Position) * float64(r.SearchVolume)
			posVolume += float64(r.Position) * float64(r.SearchVolume)
			volume += float64(r.SearchVolume)
			posSum += r.Position
		}
		switch {
		case volume > 0:
			share.WeightedPosition = round2(posVolume / volume)
		case share.RankedKeywords > 0:
			share.WeightedPosition = round2(float64(posSum) / float64(share.RankedKeywords))
		}
		res.TotalVisibility += share.Visibility
		res.Domains = append(res.Domains, share)
	}

	if res.TotalVisibility > 0 {
		for i := range res.Domains {
			res.Domains[i].Share = res.Domains[i].Visibility / res.TotalVisibility * 100
		}
	}
	slices.SortStableFunc(res.Domains, func(a, b DomainShare) int {
		return cmp.Compare(b.Share, a.Share)
	})
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
