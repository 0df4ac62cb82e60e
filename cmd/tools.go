package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/inspect"
)

func newOptimizeCmd() *cobra.Command {
	var (
		keywords []string
		render   string
	)
	cmd := &cobra.Command{
		Use:   "optimize <url>",
		Short: "Review one page's content against target keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := crawler.NormalizeHTTPURL(withScheme(args[0]))
			if err != nil {
				return fmt.Errorf("invalid url: %w", err)
			}
			mode := crawler.RenderMode(strings.ToLower(render))
			switch mode {
			case crawler.RenderAuto, crawler.RenderAlways, crawler.RenderNever:
			default:
				return fmt.Errorf("--render must be one of auto, always, never")
			}
			return runAnalysis(cmd, crawler.JobKindContentOptimizer, crawler.JobParams{
				ContentOptimizer: &crawler.ContentOptimizerParams{URL: target, TargetKeywords: keywords, Render: mode},
			})
		},
	}
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "target keywords (default: the page's most frequent terms)")
	cmd.Flags().StringVar(&render, "render", string(crawler.RenderAuto), "headless rendering: auto, always or never")
	return cmd
}

func newBulkURLsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "bulk-urls [url]...",
		Short: "Check status, redirects, metadata and indexability of many URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string(nil), args...)
			if file != "" {
				fromFile, err := readURLFile(file)
				if err != nil {
					return err
				}
				urls = append(urls, fromFile...)
			}
			switch {
			case len(urls) == 0:
				return fmt.Errorf("no URLs given")
			case len(urls) > inspect.MaxBulkURLs:
				return fmt.Errorf("at most %d URLs per run, got %d", inspect.MaxBulkURLs, len(urls))
			}
			for i, u := range urls {
				urls[i] = withScheme(u)
			}
			return runAnalysis(cmd, crawler.JobKindBulkURLs, crawler.JobParams{
				BulkURLs: &crawler.BulkURLParams{URLs: urls},
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read URLs from a file, one per line (# starts a comment)")
	return cmd
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return out, nil
}
