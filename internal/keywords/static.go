package keywords

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
)

// file is the on-disk layout:
//
//	domains:
//	  example.com:
//	    - keyword: seo tools
//	      position: 3
//	      search_volume: 12000
//	      cpc: 4.5
type file struct {
	Domains map[string][]competitive.Ranking `yaml:"domains"`
}

// Static serves rankings loaded once from YAML.
type Static struct {
	domains map[string]competitive.Rankings
}

// LoadStatic reads a rankings file from path.
func LoadStatic(path string) (*Static, error) {
	if path == "" {
		return nil, fmt.Errorf("keywords.file is required for the static source")
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyword file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseStatic(f)
}

// ParseStatic decodes a rankings document.
func ParseStatic(r io.Reader) (*Static, error) {
	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode keyword file: %w", err)
	}
	s := &Static{domains: make(map[string]competitive.Rankings, len(doc.Domains))}
	for domain, rows := range doc.Domains {
		key := competitive.NormalizeDomain(domain)
		if key == "" {
			continue
		}
		s.domains[key] = competitive.NewRankings(rows)
	}
	return s, nil
}

// FetchRankings implements Source. Unknown domains have no rankings.
func (s *Static) FetchRankings(_ context.Context, domain string, keywords []string) (competitive.Rankings, error) {
	r, ok := s.domains[competitive.NormalizeDomain(domain)]
	if !ok {
		return competitive.Rankings{}, nil
	}
	return r.Filter(keywords), nil
}

// Domains lists the domains present in the file.
func (s *Static) Domains() []string {
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	return out
}
