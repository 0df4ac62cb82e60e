// Package linkgraph computes the site-wide internal link structure of a
// finished crawl: click depth, orphans, degree distribution and a health
// score. It never touches the network.
package linkgraph

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Thresholds used by the summary and issues.
const (
	Unreachable    = -1
	DeepPageDepth  = 3
	FewLinksBelow  = 3
	topLinkedLimit = 10
	fewLinksLimit  = 10
)

// Graph is a directed graph over crawled pages and their internal links.
type Graph struct {
	root     string
	pages    []*crawler.PageRecord
	index    map[string]*crawler.PageRecord
	alias    map[string]string
	out      map[string][]string
	in       map[string]map[string]struct{}
	depth    map[string]int
	total    int
	distinct map[string]struct{}
}

// Build constructs the graph. Links are resolved against the crawled set;
// a link to a redirecting URL's final destination counts for the URL that
// was crawled.
func Build(rootURL string, pages []*crawler.PageRecord) *Graph {
	g := &Graph{
		root:     normalize(rootURL),
		pages:    pages,
		index:    make(map[string]*crawler.PageRecord, len(pages)),
		alias:    map[string]string{},
		out:      map[string][]string{},
		in:       map[string]map[string]struct{}{},
		depth:    map[string]int{},
		distinct: map[string]struct{}{},
	}
	for _, p := range pages {
		g.index[p.URL] = p
	}
	for _, p := range pages {
		if p.RedirectTarget == "" {
			continue
		}
		if _, crawled := g.index[p.RedirectTarget]; !crawled {
			g.alias[p.RedirectTarget] = p.URL
		}
	}
	if alias, ok := g.alias[g.root]; ok {
		g.root = alias
	}

	for _, p := range pages {
		seen := map[string]struct{}{}
		for _, link := range p.Links.Internal {
			target := g.resolve(link.URL)
			if target == "" || target == p.URL {
				continue
			}
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			g.out[p.URL] = append(g.out[p.URL], target)
			g.distinct[target] = struct{}{}
			g.total++
			if g.in[target] == nil {
				g.in[target] = map[string]struct{}{}
			}
			g.in[target][p.URL] = struct{}{}
		}
	}
	g.bfs()
	return g
}

func (g *Graph) resolve(raw string) string {
	u := normalize(raw)
	if alias, ok := g.alias[u]; ok {
		return alias
	}
	return u
}

func (g *Graph) bfs() {
	if _, ok := g.index[g.root]; !ok {
		return
	}
	g.depth[g.root] = 0
	queue := []string{g.root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.out[cur] {
			if _, seen := g.depth[next]; seen {
				continue
			}
			g.depth[next] = g.depth[cur] + 1
			queue = append(queue, next)
		}
	}
}

// ClickDepth returns the hop count from the root, or Unreachable.
func (g *Graph) ClickDepth(rawURL string) int {
	if d, ok := g.depth[g.resolve(rawURL)]; ok {
		return d
	}
	return Unreachable
}

// Outgoing returns the distinct internal targets linked from a page.
func (g *Graph) Outgoing(rawURL string) []string {
	return g.out[g.resolve(rawURL)]
}

// InDegree counts distinct pages linking to rawURL.
func (g *Graph) InDegree(rawURL string) int {
	return len(g.in[g.resolve(rawURL)])
}

// Orphans lists crawled pages, other than the root, that no crawled page
// links to. Order follows the input pages.
func (g *Graph) Orphans() []string {
	out := []string{}
	for _, p := range g.pages {
		if p.URL != g.root && len(g.in[p.URL]) == 0 {
			out = append(out, p.URL)
		}
	}
	return out
}

// Edges calls fn for every distinct internal link between crawled pages.
func (g *Graph) Edges(fn func(from, to string)) {
	for _, p := range g.pages {
		for _, to := range g.out[p.URL] {
			if _, crawled := g.index[to]; crawled {
				fn(p.URL, to)
			}
		}
	}
}

// Pages returns the crawled pages the graph was built from.
func (g *Graph) Pages() []*crawler.PageRecord { return g.pages }

// Summary computes the site-wide link statistics.
func (g *Graph) Summary() crawler.LinkGraphSummary {
	s := crawler.LinkGraphSummary{
		TotalInternalLinks:  g.total,
		UniqueInternalLinks: len(g.distinct),
		ClickDepth:          map[string]int{},
		Orphans:             g.Orphans(),
		InDegree:            map[string]int{},
		OutDegree:           map[string]int{},
	}
	if len(g.pages) > 0 {
		s.AverageLinksPerPage = float64(g.total) / float64(len(g.pages))
	}

	for _, p := range g.pages {
		d := g.ClickDepth(p.URL)
		s.ClickDepth[p.URL] = d
		if d == Unreachable {
			s.Unreachable = append(s.Unreachable, p.URL)
		} else if d > s.MaxDepth {
			s.MaxDepth = d
		}
		s.InDegree[p.URL] = len(g.in[p.URL])
		s.OutDegree[p.URL] = len(g.out[p.URL])
		if linksApply(p) && len(g.out[p.URL]) < FewLinksBelow {
			s.FewLinks = append(s.FewLinks, p.URL)
		}
	}

	for target := range g.distinct {
		if _, crawled := g.index[target]; !crawled {
			s.UncrawledTargets++
		}
	}
	for _, p := range g.pages {
		for _, target := range g.out[p.URL] {
			dst, crawled := g.index[target]
			if crawled && (dst.StatusCode >= 400 || !dst.Fetched()) {
				s.BrokenLinks = append(s.BrokenLinks, crawler.BrokenLink{Source: p.URL, Target: target, Status: dst.StatusCode})
			}
		}
	}

	for _, p := range g.pages {
		if n := len(g.in[p.URL]); n > 0 {
			s.TopLinked = append(s.TopLinked, crawler.LinkCount{URL: p.URL, Count: n})
		}
	}
	sort.SliceStable(s.TopLinked, func(i, j int) bool { return s.TopLinked[i].Count > s.TopLinked[j].Count })
	if len(s.TopLinked) > topLinkedLimit {
		s.TopLinked = s.TopLinked[:topLinkedLimit]
	}

	s.HealthScore = healthScore(s)
	return s
}

// healthScore starts at 70, subtracts for orphans, thinly linked pages and
// depth past three clicks, and adds for dense linking.
func healthScore(s crawler.LinkGraphSummary) int {
	score := 70
	score -= len(s.Orphans) * 5
	score -= min(len(s.FewLinks), fewLinksLimit) * 2
	score -= max(0, s.MaxDepth-DeepPageDepth) * 5
	if s.AverageLinksPerPage >= 3 {
		score += 10
	}
	if s.AverageLinksPerPage >= 5 {
		score += 10
	}
	if len(s.Orphans) == 0 {
		score += 10
	}
	if s.MaxDepth <= DeepPageDepth {
		score += 10
	}
	return max(0, min(100, score))
}

// Issues reports link-structure problems per page, in input order.
func (g *Graph) Issues() []crawler.Issue {
	var out []crawler.Issue
	add := func(url, code string, sev crawler.Severity, msg, fix string) {
		out = append(out, crawler.Issue{URL: url, Category: crawler.CategoryLinks, Code: code, Severity: sev, Message: msg, SuggestedFix: fix})
	}
	for _, p := range g.pages {
		if p.URL != g.root && len(g.in[p.URL]) == 0 {
			add(p.URL, "orphan_page", crawler.SeverityWarning, "No internal links point to this page",
				"Link to it from related content")
		}
		if d := g.ClickDepth(p.URL); d > DeepPageDepth {
			add(p.URL, "deep_page", crawler.SeverityInfo, fmt.Sprintf("Page is %d clicks from the homepage", d),
				"Keep important pages within 3 clicks of the homepage")
		}
		if linksApply(p) && len(g.out[p.URL]) < FewLinksBelow {
			add(p.URL, "few_internal_links", crawler.SeverityInfo, fmt.Sprintf("Only %d internal links", len(g.out[p.URL])),
				"Add 3-5 internal links to related content")
		}
		for _, target := range g.out[p.URL] {
			dst, crawled := g.index[target]
			if crawled && (dst.StatusCode >= 400 || !dst.Fetched()) {
				add(p.URL, "broken_internal_link", crawler.SeverityError,
					fmt.Sprintf("Links to %s which returned %s", target, statusText(dst)),
					"Update or remove the link")
			}
		}
	}
	return out
}

// linksApply limits link-count checks to successfully fetched HTML pages.
func linksApply(p *crawler.PageRecord) bool {
	return p.StatusCode >= 200 && p.StatusCode < 300 && p.RenderedHTML != ""
}

func statusText(p *crawler.PageRecord) string {
	if !p.Fetched() {
		return "a fetch error"
	}
	return fmt.Sprintf("HTTP %d", p.StatusCode)
}

func normalize(raw string) string {
	if n, err := crawler.NormalizeURL(raw); err == nil {
		return n
	}
	return raw
}
