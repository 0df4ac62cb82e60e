package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/seo-site-crawler/internal/competitive"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

func newKeywordGapCmd() *cobra.Command {
	var keywords []string
	cmd := &cobra.Command{
		Use:   "keyword-gap <domain-a> <domain-b>",
		Short: "Compare the keyword rankings of two domains",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := competitive.NormalizeDomain(args[0]), competitive.NormalizeDomain(args[1])
			if a == "" || b == "" {
				return errors.New("both domains are required")
			}
			return runAnalysis(cmd, crawler.JobKindKeywordGap, crawler.JobParams{
				KeywordGap: &crawler.KeywordGapParams{DomainA: a, DomainB: b, Keywords: keywords},
			})
		},
	}
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "restrict the comparison to these keywords")
	return cmd
}

func newShareOfVoiceCmd() *cobra.Command {
	var keywords []string
	cmd := &cobra.Command{
		Use:   "share-of-voice <domain>...",
		Short: "Split estimated search visibility across domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domains := uniqueDomains(args)
			if len(domains) == 0 {
				return errors.New("at least one domain is required")
			}
			return runAnalysis(cmd, crawler.JobKindShareOfVoice, crawler.JobParams{
				ShareOfVoice: &crawler.ShareOfVoiceParams{Domains: domains, Keywords: keywords},
			})
		},
	}
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keyword set to measure (default: every ranked keyword)")
	return cmd
}

func newOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview <domain>",
		Short: "Summarize a competitor's organic footprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := competitive.NormalizeDomain(args[0])
			if d == "" {
				return errors.New("domain is required")
			}
			return runAnalysis(cmd, crawler.JobKindCompetitorOverview, crawler.JobParams{
				Overview: &crawler.OverviewParams{Domain: d},
			})
		},
	}
}

func uniqueDomains(args []string) []string {
	seen := make(map[string]bool, len(args))
	out := make([]string, 0, len(args))
	for _, raw := range args {
		d := competitive.NormalizeDomain(raw)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// runAnalysis runs one analysis job and prints its result as indented JSON.
func runAnalysis(cmd *cobra.Command, kind crawler.JobKind, params crawler.JobParams) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	job, err := runJob(cmd.Context(), rt, kind, params)
	if err != nil {
		return err
	}
	if job.State != crawler.JobStateSuccess {
		return fmt.Errorf("%s failed: %s", kind, job.Error)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, job.Result, "", "  "); err != nil {
		return fmt.Errorf("format result: %w", err)
	}
	buf.WriteByte('\n')
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}
