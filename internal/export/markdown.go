package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

const maxMarkdownIssues = 500

// Markdown writes a GitHub-flavored summary of report. Issue detail is capped
// so very large crawls stay readable; the XLSX export carries everything.
func Markdown(w io.Writer, report crawler.Report) error {
	md := markdown.NewMarkdown(w)
	c := report.Counters

	md.H1f("SEO crawl report: %s", report.RootURL)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Job", "`" + report.JobID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Finished", report.FinishedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages crawled", strconv.Itoa(c.PagesCrawled)},
			{"Pages failed", strconv.Itoa(c.PagesFailed)},
			{"Pages rendered", strconv.Itoa(c.PagesRendered)},
			{"Average load time", strconv.FormatFloat(c.AverageLoadTimeMS, 'f', 0, 64) + " ms"},
			{"Link health score", strconv.Itoa(report.LinkGraphSummary.HealthScore)},
		},
	})
	md.PlainText("")
	if report.Partial {
		md.Warningf("This report is partial: the crawl stopped before the frontier was drained.")
		md.PlainText("")
	}

	writeSeverities(md, c)
	writeTopCodes(md, report.Issues)
	writeLinkGraph(md, report.LinkGraphSummary)
	if report.Sitemap != nil {
		writeSitemap(md, report.Sitemap)
	}
	writeIssues(md, report.Issues)

	md.HorizontalRule()
	md.PlainText("Generated by seo-site-crawler.")
	return md.Build()
}

func writeSeverities(md *markdown.Markdown, c crawler.Counters) {
	md.H2("Issues by severity")
	md.PlainText("")
	rows := make([][]string, 0, len(severityOrder))
	total := 0
	for _, s := range severityOrder {
		n := c.IssuesBySeverity[s]
		total += n
		rows = append(rows, []string{string(s), strconv.Itoa(n)})
	}
	rows = append(rows, []string{"**total**", "**" + strconv.Itoa(total) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Severity", "Count"}, Rows: rows})
	md.PlainText("")

	if total == 0 {
		md.Tip("No issues found.")
		md.PlainText("")
		return
	}
	chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Issue severity"), piechart.WithShowData(true))
	for _, s := range severityOrder {
		if n := c.IssuesBySeverity[s]; n > 0 {
			chart.LabelAndIntValue(string(s), uint64(n))
		}
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
	if n := c.IssuesBySeverity[crawler.SeverityError]; n > 0 {
		md.Cautionf("%d error-level issue(s) need attention.", n)
		md.PlainText("")
	}
}

func writeTopCodes(md *markdown.Markdown, issues []crawler.Issue) {
	codes := issueCodes(issues)
	if len(codes) == 0 {
		return
	}
	md.H2("Most frequent issues")
	md.PlainText("")
	rows := make([][]string, 0, min(len(codes), 20))
	for _, cc := range codes[:min(len(codes), 20)] {
		rows = append(rows, []string{"`" + cc.Code + "`", cc.Category, string(cc.Severity), strconv.Itoa(cc.Count)})
	}
	md.Table(markdown.TableSet{Header: []string{"Code", "Category", "Severity", "Pages"}, Rows: rows})
	md.PlainText("")
}

func writeLinkGraph(md *markdown.Markdown, g crawler.LinkGraphSummary) {
	md.H2("Internal linking")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Internal links", strconv.Itoa(g.TotalInternalLinks)},
			{"Unique internal links", strconv.Itoa(g.UniqueInternalLinks)},
			{"Average links per page", strconv.FormatFloat(g.AverageLinksPerPage, 'f', 1, 64)},
			{"Max click depth", strconv.Itoa(g.MaxDepth)},
			{"Orphan pages", strconv.Itoa(len(g.Orphans))},
			{"Broken internal links", strconv.Itoa(len(g.BrokenLinks))},
		},
	})
	md.PlainText("")
	if len(g.Orphans) > 0 {
		md.H3("Orphan pages")
		md.PlainText("")
		md.BulletList(g.Orphans...)
		md.PlainText("")
	}
	if len(g.BrokenLinks) > 0 {
		md.H3("Broken internal links")
		md.PlainText("")
		rows := make([][]string, 0, len(g.BrokenLinks))
		for _, b := range g.BrokenLinks {
			rows = append(rows, []string{b.Source, b.Target, strconv.Itoa(b.Status)})
		}
		md.Table(markdown.TableSet{Header: []string{"Source", "Target", "Status"}, Rows: rows})
		md.PlainText("")
	}
}

func writeSitemap(md *markdown.Markdown, s *crawler.SitemapAudit) {
	md.H2("Sitemap and robots.txt")
	md.PlainText("")
	sitemap := s.SitemapURL
	if sitemap == "" {
		sitemap = "not found"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Result"},
		Rows: [][]string{
			{"Sitemap", sitemap},
			{"URLs in sitemap", strconv.Itoa(len(s.URLs))},
			{"Sitemap URLs not crawled", strconv.Itoa(len(s.NotInCrawl))},
			{"Crawled pages missing from sitemap", strconv.Itoa(len(s.MissingFromMap))},
			{"robots.txt present", strconv.FormatBool(s.HasRobots)},
			{"Disallowed paths", strings.Join(s.DisallowedPaths, ", ")},
		},
	})
	md.PlainText("")
	if len(s.Recommendations) > 0 {
		md.BulletList(s.Recommendations...)
		md.PlainText("")
	}
}

func writeIssues(md *markdown.Markdown, issues []crawler.Issue) {
	if len(issues) == 0 {
		return
	}
	md.H2("All issues")
	md.PlainText("")
	sorted := sortedIssues(issues)
	shown := sorted[:min(len(sorted), maxMarkdownIssues)]
	rows := make([][]string, 0, len(shown))
	for _, is := range shown {
		rows = append(rows, []string{string(is.Severity), is.URL, "`" + is.Code + "`", escapeCell(is.Message), escapeCell(is.SuggestedFix)})
	}
	md.Table(markdown.TableSet{Header: []string{"Severity", "URL", "Code", "Message", "Fix"}, Rows: rows})
	md.PlainText("")
	if len(sorted) > len(shown) {
		md.Notef("%d more issue(s) omitted; use the xlsx export for the full list.", len(sorted)-len(shown))
		md.PlainText("")
	}
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}
