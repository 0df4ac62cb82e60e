package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/export"
)

type crawlOptions struct {
	maxPages        int
	maxDepth        int
	render          string
	allowSubdomains bool
	ignoreRobots    bool
	skipSitemap     bool
	exclude         []string
	performance     bool
	format          string
	output          string
}

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl <root-url>",
		Short: "Crawl a site locally and write the report",
		Long: `Crawl a site in-process and write the SEO report as Markdown (default),
Excel or JSON. The format follows --format, or the extension of --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.maxPages, "max-pages", 0, "page budget (default crawler.max_pages_default)")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "link depth limit (default crawler.max_depth_default)")
	f.StringVar(&opts.render, "render", "", "browser rendering: auto, always or never")
	f.BoolVar(&opts.allowSubdomains, "allow-subdomains", false, "follow links to subdomains of the root")
	f.BoolVar(&opts.ignoreRobots, "ignore-robots", false, "do not honour robots.txt")
	f.BoolVar(&opts.skipSitemap, "skip-sitemap", false, "do not audit or seed from the sitemap")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "host patterns or /path globs to skip")
	f.BoolVar(&opts.performance, "performance", false, "score Core Web Vitals per page")
	f.StringVar(&opts.format, "format", "", "md, xlsx or json")
	f.StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runCrawl(cmd *cobra.Command, rootURL string, opts *crawlOptions) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	format, err := outputFormat(opts.format, opts.output)
	if err != nil {
		return err
	}
	if format == export.FormatXLSX && opts.output == "" {
		return errors.New("xlsx output needs --output")
	}
	params, err := crawlParams(rt, rootURL, opts)
	if err != nil {
		return err
	}

	job, err := runJob(cmd.Context(), rt, crawler.JobKindCrawl, crawler.JobParams{Crawl: &params})
	if err != nil {
		return err
	}
	if len(job.Result) > 0 {
		if err := writeReport(cmd.OutOrStdout(), opts.output, format, job.Result); err != nil {
			return err
		}
	}
	if job.State != crawler.JobStateSuccess {
		return fmt.Errorf("crawl %s: %s", strings.ToLower(string(job.State)), job.Error)
	}
	return nil
}

// withScheme defaults bare hosts to https.
func withScheme(raw string) string {
	if !strings.Contains(raw, "://") {
		return "https://" + raw
	}
	return raw
}

func crawlParams(rt *runtime, rootURL string, opts *crawlOptions) (crawler.CrawlParams, error) {
	root, err := crawler.NormalizeHTTPURL(withScheme(rootURL))
	if err != nil {
		return crawler.CrawlParams{}, fmt.Errorf("root url: %w", err)
	}
	switch crawler.RenderMode(opts.render) {
	case "", crawler.RenderAuto, crawler.RenderAlways, crawler.RenderNever:
	default:
		return crawler.CrawlParams{}, fmt.Errorf("--render must be auto, always or never")
	}
	return rt.cfg.ApplyCrawlDefaults(crawler.CrawlParams{
		RootURL:          root,
		MaxPages:         opts.maxPages,
		MaxDepth:         opts.maxDepth,
		CheckPerformance: opts.performance,
		Options: crawler.CrawlOptions{
			AllowSubdomains: opts.allowSubdomains || rt.cfg.Crawler.AllowSubdomains,
			RespectRobots:   rt.cfg.Crawler.RespectRobots && !opts.ignoreRobots,
			Render:          crawler.RenderMode(opts.render),
			IncludeSitemap:  rt.cfg.Crawler.IncludeSitemap && !opts.skipSitemap,
			ExcludePatterns: opts.exclude,
			ArchiveHTML:     rt.cfg.Crawler.ArchiveHTML,
		},
	}), nil
}

const formatJSON export.Format = "json"

func outputFormat(flag, output string) (export.Format, error) {
	if flag == "" && output != "" {
		flag = strings.TrimPrefix(filepath.Ext(output), ".")
	}
	if strings.EqualFold(flag, "json") {
		return formatJSON, nil
	}
	return export.ParseFormat(flag)
}

func writeReport(stdout io.Writer, output string, format export.Format, raw json.RawMessage) (err error) {
	w := stdout
	if output != "" {
		var f *os.File
		f, err = os.Create(output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close report: %w", cerr)
			}
		}()
		w = f
	}
	if format == formatJSON {
		var pretty any
		if err := json.Unmarshal(raw, &pretty); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pretty)
	}
	var report crawler.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	return export.Write(w, format, report)
}
