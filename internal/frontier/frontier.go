// Package frontier holds the crawl queue, the visited set and the scope rules
// that decide which discovered URLs are worth fetching.
package frontier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// DropReason names why Offer rejected a URL.
type DropReason string

// Reasons counted by the frontier.
const (
	DropDuplicate  DropReason = "duplicate"
	DropOutOfScope DropReason = "out_of_scope"
	DropDepth      DropReason = "depth"
	DropBudget     DropReason = "budget"
	DropRobots     DropReason = "robots"
	DropExcluded   DropReason = "excluded"
	DropInvalid    DropReason = "invalid"
)

// Config bounds one crawl.
type Config struct {
	RootURL         string
	MaxPages        int
	MaxDepth        int
	AllowSubdomains bool
	Robots          crawler.RobotsChecker
	Exclude         *crawler.Blocklist
}

// Frontier is the single coordinating owner of the queue and visited set.
// Entries come out in discovery order, which keeps shallower pages first
// because links are only offered after their parent is fetched.
type Frontier struct {
	cfg      Config
	rootHost string
	domain   string

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []crawler.FrontierEntry
	seen     map[string]struct{}
	accepted int
	inFlight int
	closed   bool
	dropped  map[DropReason]int
}

// New builds a frontier for the crawl rooted at cfg.RootURL.
func New(cfg Config) (*Frontier, error) {
	root, err := crawler.NormalizeURL(cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("root url: %w", err)
	}
	if !strings.HasPrefix(root, "http://") && !strings.HasPrefix(root, "https://") {
		return nil, fmt.Errorf("root url %q must be http or https", cfg.RootURL)
	}
	if cfg.MaxPages <= 0 {
		return nil, fmt.Errorf("max pages must be > 0")
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.Robots == nil {
		cfg.Robots = crawler.AllowAllRobots{}
	}
	cfg.RootURL = root
	host := crawler.Hostname(root)
	domain := host
	if cfg.AllowSubdomains {
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			domain = etld1
		}
	}
	f := &Frontier{
		cfg:      cfg,
		rootHost: host,
		domain:   domain,
		seen:     make(map[string]struct{}),
		dropped:  make(map[DropReason]int),
	}
	f.cond = sync.NewCond(&f.mu)
	return f, nil
}

// Root returns the normalized root URL.
func (f *Frontier) Root() string {
	return f.cfg.RootURL
}

// InScope reports whether rawURL belongs to the crawled site.
func (f *Frontier) InScope(rawURL string) bool {
	host := crawler.Hostname(rawURL)
	if host == "" {
		return false
	}
	if !f.cfg.AllowSubdomains {
		return host == f.rootHost
	}
	return host == f.domain || strings.HasSuffix(host, "."+f.domain)
}

// Offer enqueues rawURL at depth when it is unseen, in scope, within the
// depth and page budgets, allowed by robots and not excluded. Rejections are
// counted, never returned as errors.
func (f *Frontier) Offer(ctx context.Context, rawURL string, depth int) bool {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		f.drop(DropInvalid)
		return false
	}
	if !f.InScope(normalized) {
		f.drop(DropOutOfScope)
		return false
	}
	if depth > f.cfg.MaxDepth {
		f.drop(DropDepth)
		return false
	}
	if f.cfg.Exclude.Blocked(normalized) {
		f.drop(DropExcluded)
		return false
	}

	f.mu.Lock()
	_, dup := f.seen[normalized]
	f.mu.Unlock()
	if dup {
		f.drop(DropDuplicate)
		return false
	}

	// The robots lookup may hit the network, so it runs outside the lock.
	if !f.cfg.Robots.Allowed(ctx, normalized) {
		f.mu.Lock()
		f.seen[normalized] = struct{}{}
		f.dropped[DropRobots]++
		f.mu.Unlock()
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[normalized]; dup {
		f.dropped[DropDuplicate]++
		return false
	}
	if f.closed {
		return false
	}
	if f.accepted >= f.cfg.MaxPages {
		f.dropped[DropBudget]++
		return false
	}
	f.seen[normalized] = struct{}{}
	f.accepted++
	f.queue = append(f.queue, crawler.FrontierEntry{URL: normalized, Depth: depth})
	f.cond.Signal()
	return true
}

// Take blocks until an entry is available. It returns false once the queue
// is empty with nothing in flight, after Close, or when ctx ends.
func (f *Frontier) Take(ctx context.Context) (crawler.FrontierEntry, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed || ctx.Err() != nil {
			return crawler.FrontierEntry{}, false
		}
		if len(f.queue) > 0 {
			entry := f.queue[0]
			f.queue[0] = crawler.FrontierEntry{}
			f.queue = f.queue[1:]
			f.inFlight++
			return entry, true
		}
		if f.inFlight == 0 {
			f.closed = true
			f.cond.Broadcast()
			return crawler.FrontierEntry{}, false
		}
		f.cond.Wait()
	}
}

// Done marks one taken entry as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// Close stops dispatch; pending entries are discarded.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
}

// Accepted returns how many URLs were admitted.
func (f *Frontier) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

// Pending returns how many admitted URLs were never taken.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Dropped returns a copy of the rejection counters.
func (f *Frontier) Dropped() map[DropReason]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[DropReason]int, len(f.dropped))
	for k, v := range f.dropped {
		out[k] = v
	}
	return out
}

// ScopeDropped sums rejections caused by scope rules rather than dedup.
func (f *Frontier) ScopeDropped() int {
	total := 0
	for reason, n := range f.Dropped() {
		if reason != DropDuplicate {
			total += n
		}
	}
	return total
}

func (f *Frontier) drop(reason DropReason) {
	f.mu.Lock()
	f.dropped[reason]++
	f.mu.Unlock()
}
