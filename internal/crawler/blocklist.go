package crawler

import (
	"net/url"
	"path"
	"strings"
)

// Blocklist excludes URLs by host pattern or path glob. Host patterns are
// exact hosts or "*.suffix"; anything starting with "/" is a path glob
// matched with path.Match, or as a prefix when it ends in "/*" or "/".
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
	paths    []string
}

// NewBlocklist compiles patterns. It returns nil when nothing is excluded.
func NewBlocklist(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if strings.HasPrefix(value, "/") {
			b.paths = append(b.paths, value)
			continue
		}
		value = strings.ToLower(value)
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 && len(b.paths) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether rawURL matches any pattern.
func (b *Blocklist) Blocked(rawURL string) bool {
	if b == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return b.hostBlocked(u.Hostname()) || b.pathBlocked(u.Path)
}

func (b *Blocklist) hostBlocked(host string) bool {
	host = strings.ToLower(host)
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func (b *Blocklist) pathBlocked(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range b.paths {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
				return true
			}
			continue
		}
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(p, pattern) {
			return true
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
