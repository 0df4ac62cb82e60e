// Package sitemap audits a site's robots.txt and XML sitemap and compares
// them with what a crawl actually reached.
package sitemap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Candidate sitemap paths probed when robots.txt names none.
var candidates = []string{"/sitemap.xml", "/sitemap_index.xml", "/wp-sitemap.xml"}

// ErrNotSitemap is returned by Parse for XML that is neither a urlset nor a
// sitemapindex.
var ErrNotSitemap = errors.New("document is not a sitemap")

// Config bounds the audit's network use.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBytes    int64
	MaxURLs     int
	MaxChildren int
}

// Auditor fetches robots.txt and sitemaps over HTTP.
type Auditor struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New builds an Auditor; a nil client uses http.DefaultClient.
func New(client *http.Client, cfg Config, logger *zap.Logger) *Auditor {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 50000
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{client: client, cfg: cfg, logger: logger.Named("sitemap")}
}

// Audit inspects the site at rootURL. Missing files are findings, not
// errors; only an invalid root or a cancelled ctx fails the audit.
func (a *Auditor) Audit(ctx context.Context, rootURL string) (*crawler.SitemapAudit, error) {
	base, err := url.Parse(rootURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("sitemap audit: invalid root url %q", rootURL)
	}
	site := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	audit := &crawler.SitemapAudit{}

	body, found, err := a.get(ctx, site.JoinPath("robots.txt").String())
	if err != nil {
		return nil, err
	}
	if found {
		applyRobots(audit, body, a.cfg.UserAgent)
	} else {
		audit.RobotsIssues = append(audit.RobotsIssues, "No robots.txt found - search engines can crawl everything")
	}

	locations := make([]string, 0, len(candidates)+1)
	if audit.RobotsSitemap != "" {
		locations = append(locations, audit.RobotsSitemap)
	}
	for _, p := range candidates {
		locations = append(locations, site.JoinPath(p).String())
	}

	for _, loc := range locations {
		urls, ok, err := a.load(ctx, loc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		audit.SitemapURL = loc
		audit.URLs = urls
		break
	}

	for _, u := range audit.URLs {
		parsed, err := url.Parse(u.Loc)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			audit.InvalidURLs = append(audit.InvalidURLs, u.Loc)
		}
	}
	a.logger.Debug("sitemap audited",
		zap.String("root_url", rootURL),
		zap.String("sitemap_url", audit.SitemapURL),
		zap.Int("urls", len(audit.URLs)))
	return audit, nil
}

// load reads the sitemap at loc, following one level of sitemap index.
func (a *Auditor) load(ctx context.Context, loc string) ([]crawler.SitemapURL, bool, error) {
	body, found, err := a.get(ctx, loc)
	if err != nil || !found {
		return nil, false, err
	}
	urls, children, err := Parse(body)
	if err != nil {
		a.logger.Debug("ignoring unparsable sitemap", zap.String("url", loc), zap.Error(err))
		return nil, false, nil
	}
	for i, child := range children {
		if i >= a.cfg.MaxChildren || len(urls) >= a.cfg.MaxURLs {
			break
		}
		childBody, ok, err := a.get(ctx, child)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		childURLs, _, err := Parse(childBody)
		if err != nil {
			a.logger.Debug("ignoring unparsable child sitemap", zap.String("url", child), zap.Error(err))
			continue
		}
		urls = append(urls, childURLs...)
	}
	if len(urls) > a.cfg.MaxURLs {
		urls = urls[:a.cfg.MaxURLs]
	}
	return urls, true, nil
}

// get returns the body of a 200 response. Transport failures and non-200
// statuses report found=false; only ctx cancellation is an error.
func (a *Auditor) get(ctx context.Context, target string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, nil
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("sitemap audit: %w", ctx.Err())
		}
		a.logger.Debug("sitemap fetch failed", zap.String("url", target), zap.Error(err))
		return nil, false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, a.cfg.MaxBytes))
	if err != nil {
		return nil, false, nil
	}
	return body, true, nil
}

// Parse reads a urlset or sitemapindex document. For an index it returns
// the child sitemap locations and no URLs.
func Parse(body []byte) ([]crawler.SitemapURL, []string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse sitemap: %w", err)
	}
	if xmlquery.FindOne(doc, "/sitemapindex") != nil {
		var children []string
		for _, n := range xmlquery.Find(doc, "/sitemapindex/sitemap/loc") {
			if loc := strings.TrimSpace(n.InnerText()); loc != "" {
				children = append(children, loc)
			}
		}
		return nil, children, nil
	}
	if xmlquery.FindOne(doc, "/urlset") == nil {
		return nil, nil, ErrNotSitemap
	}
	var urls []crawler.SitemapURL
	for _, n := range xmlquery.Find(doc, "/urlset/url") {
		loc := childText(n, "loc")
		if loc == "" {
			continue
		}
		entry := crawler.SitemapURL{
			Loc:        loc,
			LastMod:    childText(n, "lastmod"),
			ChangeFreq: childText(n, "changefreq"),
		}
		if p, err := strconv.ParseFloat(childText(n, "priority"), 64); err == nil {
			entry.Priority = p
		}
		urls = append(urls, entry)
	}
	return urls, nil, nil
}

func childText(n *xmlquery.Node, name string) string {
	child := n.SelectElement(name)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}

// applyRobots fills the robots fields of audit. Sitemap references and
// crawl-delay come from robotstxt; disallow lines are collected directly
// because the parser keeps its rules private.
func applyRobots(audit *crawler.SitemapAudit, body []byte, agent string) {
	audit.HasRobots = true
	data, err := robotstxt.FromStatusAndBytes(http.StatusOK, body)
	if err != nil {
		audit.RobotsIssues = append(audit.RobotsIssues, fmt.Sprintf("robots.txt could not be parsed: %v", err))
		return
	}
	if len(data.Sitemaps) > 0 {
		audit.RobotsSitemap = data.Sitemaps[0]
	} else {
		audit.RobotsIssues = append(audit.RobotsIssues, "Sitemap not declared in robots.txt")
	}
	if group := data.FindGroup(agent); group != nil && group.CrawlDelay > 0 {
		audit.CrawlDelay = int(group.CrawlDelay / time.Second)
	}
	audit.DisallowedPaths = disallowed(body)
	if !data.TestAgent("/", agent) {
		audit.RobotsIssues = append(audit.RobotsIssues, "All crawling disallowed - site won't be indexed")
	}
}

// disallowed lists Disallow paths from groups addressed to every agent or
// to Googlebot.
func disallowed(body []byte) []string {
	var paths []string
	relevant := false
	inAgents := false
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			match := agent == "*" || strings.Contains(agent, "googlebot")
			if inAgents {
				relevant = relevant || match
			} else {
				relevant = match
			}
			inAgents = true
			continue
		case "disallow":
			if relevant && value != "" {
				paths = append(paths, value)
			}
		}
		inAgents = false
	}
	return paths
}
