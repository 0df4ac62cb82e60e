// Package cmd defines the seo-crawler command line: the HTTP service and
// one-shot local crawls and competitive reports.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/config"
	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/logging"
	"github.com/JakeFAU/seo-site-crawler/internal/server"
	configfile "github.com/JakeFAU/seo-site-crawler/pkg/config"
)

// Jobs is the slice of the dispatcher the commands drive.
type Jobs interface {
	Submit(ctx context.Context, kind crawler.JobKind, params crawler.JobParams) (crawler.Job, error)
	Await(ctx context.Context, id string) (crawler.Job, error)
	Cancel(ctx context.Context, id string) (crawler.Job, error)
}

// App is what commands need from the assembled service. Tests swap in a fake
// through newApp.
type App interface {
	Run(ctx context.Context) error
	Start(ctx context.Context) <-chan struct{}
	Jobs() Jobs
	Close(ctx context.Context) error
}

type serverApp struct {
	*server.App
}

func (a serverApp) Jobs() Jobs { return a.App.Jobs() }

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return serverApp{app}, nil
}

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "seo-crawler",
		Short:         "Crawl websites and report SEO issues",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `seo-crawler crawls a site breadth-first, runs technical, content and
accessibility analyzers on every page, builds the internal link graph and
audits the sitemap. It also computes competitive keyword metrics.

Run "seo-crawler serve" for the HTTP API, or crawl directly from the shell.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				_ = rt.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default: ./config.yaml, then $XDG_CONFIG_HOME/seo-crawler/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	cmd.AddCommand(newServeCmd(), newCrawlCmd(), newKeywordGapCmd(), newShareOfVoiceCmd(), newOverviewCmd(),
		newOptimizeCmd(), newBulkURLsCmd())
	return cmd
}

func loadRuntime(opts *rootOptions) (*runtime, error) {
	path, err := configfile.Find(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := logging.NewWithLevel(cfg.Logging.Development, level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	if path != "" {
		logger.Debug("using config file", zap.String("path", path))
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not initialized")
	}
	return rt, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
