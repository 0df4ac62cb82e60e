package competitive

import (
	"cmp"
	"slices"
)

// CommonKeyword is a keyword both domains rank for.
type CommonKeyword struct {
	Keyword      string `json:"keyword"`
	PositionA    int    `json:"position_a"`
	PositionB    int    `json:"position_b"`
	SearchVolume int64  `json:"search_volume"`
}

// GapResult partitions the keywords of two domains.
type GapResult struct {
	DomainA       string          `json:"domain_a"`
	DomainB       string          `json:"domain_b"`
	OnlyInA       []Ranking       `json:"only_in_a"`
	OnlyInB       []Ranking       `json:"only_in_b"`
	Common        []CommonKeyword `json:"common"`
	Opportunities []Ranking       `json:"gap_opportunities"`
}

// KeywordGap splits keys(a) ∪ keys(b) into only-in-A, only-in-B and common.
// Gap opportunities are the only-in-B keywords ordered by search volume
// (highest first), then by position (best first).
func KeywordGap(domainA, domainB string, a, b Rankings) GapResult {
	res := GapResult{
		DomainA: domainA,
		DomainB: domainB,
		OnlyInA: []Ranking{},
		OnlyInB: []Ranking{},
		Common:  []CommonKeyword{},
	}
	for kw, ra := range a {
		rb, ok := b[kw]
		if !ok {
			res.OnlyInA = append(res.OnlyInA, ra)
			continue
		}
		res.Common = append(res.Common, CommonKeyword{
			Keyword:      kw,
			PositionA:    ra.Position,
			PositionB:    rb.Position,
			SearchVolume: max(ra.SearchVolume, rb.SearchVolume),
		})
	}
	for kw, rb := range b {
		if _, ok := a[kw]; !ok {
			res.OnlyInB = append(res.OnlyInB, rb)
		}
	}

	slices.SortFunc(res.OnlyInA, byOpportunity)
	slices.SortFunc(res.OnlyInB, byOpportunity)
	slices.SortFunc(res.Common, func(x, y CommonKeyword) int {
		if c := cmp.Compare(y.SearchVolume, x.SearchVolume); c != 0 {
			return c
		}
		return cmp.Compare(x.Keyword, y.Keyword)
	})
	res.Opportunities = slices.Clone(res.OnlyInB)
	return res
}

func byOpportunity(x, y Ranking) int {
	if c := cmp.Compare(y.SearchVolume, x.SearchVolume); c != 0 {
		return c
	}
	if c := cmp.Compare(positionRank(x.Position), positionRank(y.Position)); c != 0 {
		return c
	}
	return cmp.Compare(x.Keyword, y.Keyword)
}

// positionRank orders unranked entries after every real position.
func positionRank(p int) int {
	if p <= 0 {
		return int(^uint(0) >> 1)
	}
	return p
}
