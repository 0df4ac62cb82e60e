// Package export renders a finished crawl report as a Markdown document or
// an Excel workbook.
package export

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Format names an export encoding.
type Format string

// Supported formats.
const (
	FormatMarkdown Format = "markdown"
	FormatXLSX     Format = "xlsx"
)

// ParseFormat accepts the format names used by the API and CLI.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return FormatMarkdown, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/markdown; charset=utf-8"
}

// Extension is the file suffix for f, without the dot.
func (f Format) Extension() string {
	if f == FormatXLSX {
		return "xlsx"
	}
	return "md"
}

// Write renders report in format f.
func Write(w io.Writer, f Format, report crawler.Report) error {
	switch f {
	case FormatMarkdown:
		return Markdown(w, report)
	case FormatXLSX:
		return XLSX(w, report)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

var severityOrder = []crawler.Severity{crawler.SeverityError, crawler.SeverityWarning, crawler.SeverityInfo}

func severityRank(s crawler.Severity) int {
	if i := slices.Index(severityOrder, s); i >= 0 {
		return i
	}
	return len(severityOrder)
}

// sortedIssues orders issues by severity, then URL, keeping analyzer order
// within a page.
func sortedIssues(issues []crawler.Issue) []crawler.Issue {
	out := slices.Clone(issues)
	slices.SortStableFunc(out, func(a, b crawler.Issue) int {
		if c := cmp.Compare(severityRank(a.Severity), severityRank(b.Severity)); c != 0 {
			return c
		}
		return cmp.Compare(a.URL, b.URL)
	})
	return out
}

type codeCount struct {
	Code     string
	Category string
	Severity crawler.Severity
	Count    int
}

// issueCodes tallies issues per code, most frequent first.
func issueCodes(issues []crawler.Issue) []codeCount {
	idx := map[string]int{}
	var out []codeCount
	for _, is := range issues {
		i, ok := idx[is.Code]
		if !ok {
			i = len(out)
			idx[is.Code] = i
			out = append(out, codeCount{Code: is.Code, Category: is.Category, Severity: is.Severity})
		}
		out[i].Count++
	}
	slices.SortStableFunc(out, func(a, b codeCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}
