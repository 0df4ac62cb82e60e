package keywords

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
)

var sampleKeywords = []string{
	"seo tools", "keyword research", "backlink analysis", "site audit",
	"rank tracking", "competitor analysis", "content optimization",
	"technical seo", "local seo", "link building", "on-page seo",
	"seo dashboard", "serp tracking", "domain authority", "page speed",
	"mobile seo", "schema markup", "canonical tags", "meta tags",
	"xml sitemap", "robots.txt", "google analytics", "search console",
}

// Simulated invents plausible rankings for demos. Output depends only on the
// domain, so repeated calls agree with each other.
type Simulated struct {
	maxKeywords int
}

// NewSimulated returns a simulator emitting at most maxKeywords rows
// (all sample keywords when maxKeywords <= 0).
func NewSimulated(maxKeywords int) *Simulated {
	return &Simulated{maxKeywords: maxKeywords}
}

// FetchRankings implements Source.
func (s *Simulated) FetchRankings(ctx context.Context, domain string, keywords []string) (competitive.Rankings, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("simulate rankings: %w", err)
	}
	domain = competitive.NormalizeDomain(domain)
	if domain == "" {
		return competitive.Rankings{}, nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(domain))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	boosted := strings.Contains(domain, "seo") || strings.Contains(domain, "tool") || strings.Contains(domain, "rank")

	n := len(sampleKeywords)
	if s.maxKeywords > 0 {
		n = min(n, s.maxKeywords)
	}
	rows := make([]competitive.Ranking, 0, n)
	for _, kw := range sampleKeywords[:n] {
		position := rng.IntN(50) + 1
		if boosted {
			position = max(1, position-10)
		}
		rows = append(rows, competitive.Ranking{
			Keyword:      kw,
			Position:     position,
			SearchVolume: int64(rng.IntN(49901) + 100),
			CPC:          math.Round((0.5+rng.Float64()*14.5)*100) / 100,
			Competition:  math.Round((0.1+rng.Float64()*0.8)*100) / 100,
			URL:          "https://" + domain + "/" + strings.ReplaceAll(kw, " ", "-"),
		})
	}
	return competitive.NewRankings(rows).Filter(keywords), nil
}
