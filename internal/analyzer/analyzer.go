// Package analyzer runs an ordered set of independent checks over one
// PageRecord. Each check emits issues and numeric metrics; a failing check
// is recorded as an analyzer_error issue and never stops the others.
package analyzer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
	"github.com/JakeFAU/seo-site-crawler/internal/metrics"
)

// Analyzer inspects a single page.
type Analyzer interface {
	Name() string
	Analyze(page *crawler.PageRecord) (Result, error)
}

// Result is what one analyzer found on one page.
type Result struct {
	Issues  []crawler.Issue
	Metrics map[string]float64
}

// ErrNoDocument is returned by DOM analyzers handed a page without HTML.
var ErrNoDocument = errors.New("page has no document")

// Pipeline applies analyzers in registration order.
type Pipeline struct {
	analyzers []Analyzer
	logger    *zap.Logger
}

// NewPipeline wires analyzers in the given order.
func NewPipeline(logger *zap.Logger, analyzers ...Analyzer) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{analyzers: analyzers, logger: logger.Named("analyzer")}
}

// Default returns the standard pipeline.
func Default(weights ContentWeights, logger *zap.Logger) *Pipeline {
	return NewPipeline(logger,
		NewIndexability(),
		NewMetadata(),
		NewContent(weights),
		NewImages(),
		NewAccessibility(),
		NewSecurity(),
		NewSchema(),
	)
}

// Names lists the registered analyzers in order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.analyzers))
	for _, a := range p.analyzers {
		names = append(names, a.Name())
	}
	return names
}

// Run applies every analyzer to page. Metrics are keyed "<analyzer>.<metric>".
func (p *Pipeline) Run(page *crawler.PageRecord) Result {
	out := Result{Issues: []crawler.Issue{}, Metrics: map[string]float64{}}
	for _, a := range p.analyzers {
		res, err := safeAnalyze(a, page)
		if err != nil {
			aerr := &crawler.AnalyzerError{Analyzer: a.Name(), URL: page.URL, Err: err}
			p.logger.Warn("analyzer failed", zap.String("analyzer", a.Name()), zap.String("url", page.URL), zap.Error(err))
			metrics.ObserveAnalyzerFailure(a.Name())
			out.Issues = append(out.Issues, crawler.Issue{
				URL:      page.URL,
				Category: crawler.CategoryAnalyzer,
				Code:     "analyzer_error",
				Severity: crawler.SeverityWarning,
				Message:  aerr.Error(),
			})
			continue
		}
		out.Issues = append(out.Issues, res.Issues...)
		for k, v := range res.Metrics {
			out.Metrics[a.Name()+"."+k] = v
		}
	}
	return out
}

func safeAnalyze(a Analyzer, page *crawler.PageRecord) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Analyze(page)
}

// hasDocument reports whether DOM checks apply: a successful HTML response.
func hasDocument(page *crawler.PageRecord) bool {
	return page.StatusCode >= 200 && page.StatusCode < 300 && page.RenderedHTML != ""
}

func issue(page *crawler.PageRecord, category, code string, sev crawler.Severity, msg, fix string) crawler.Issue {
	return crawler.Issue{
		URL:          page.URL,
		Category:     category,
		Code:         code,
		Severity:     sev,
		Message:      msg,
		SuggestedFix: fix,
	}
}
