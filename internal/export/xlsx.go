package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Sheet names of the XLSX export.
const (
	SheetSummary = "Summary"
	SheetPages   = "Pages"
	SheetIssues  = "Issues"
	SheetLinks   = "Links"
)

// XLSX writes report as a workbook with one sheet per table.
func XLSX(w io.Writer, report crawler.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	c := report.Counters
	summary := [][]any{
		{"Property", "Value"},
		{"Root URL", report.RootURL},
		{"Job", report.JobID},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Finished", report.FinishedAt.Format("2006-01-02 15:04:05 MST")},
		{"Partial", report.Partial},
		{"Pages crawled", c.PagesCrawled},
		{"Pages failed", c.PagesFailed},
		{"Pages rendered", c.PagesRendered},
		{"Average load time (ms)", c.AverageLoadTimeMS},
		{"Total bytes", c.TotalBytes},
		{"Errors", c.IssuesBySeverity[crawler.SeverityError]},
		{"Warnings", c.IssuesBySeverity[crawler.SeverityWarning]},
		{"Info", c.IssuesBySeverity[crawler.SeverityInfo]},
		{"Link health score", report.LinkGraphSummary.HealthScore},
		{"Orphan pages", len(report.LinkGraphSummary.Orphans)},
	}
	if err := writeSheet(f, SheetSummary, summary, header, 30); err != nil {
		return err
	}

	pages := [][]any{{"URL", "Final URL", "Status", "Depth", "Title", "Meta description", "Words", "Load (ms)", "Bytes", "Rendered", "Issues", "Inbound links", "Click depth", "Error"}}
	for _, p := range report.Pages {
		pg := p.Page
		pages = append(pages, []any{
			pg.URL, pg.FinalURL, pg.StatusCode, pg.Depth, pg.Title, pg.MetaDescription, pg.WordCount,
			pg.LoadTimeMS, pg.PageSizeBytes, pg.Rendered, len(p.Issues),
			report.LinkGraphSummary.InDegree[pg.URL], clickDepth(report.LinkGraphSummary, pg.URL), pg.FetchError,
		})
	}
	if err := addSheet(f, SheetPages, pages, header); err != nil {
		return err
	}

	issues := [][]any{{"Severity", "Category", "Code", "URL", "Message", "Suggested fix"}}
	for _, is := range sortedIssues(report.Issues) {
		issues = append(issues, []any{string(is.Severity), is.Category, is.Code, is.URL, is.Message, is.SuggestedFix})
	}
	if err := addSheet(f, SheetIssues, issues, header); err != nil {
		return err
	}

	links := [][]any{{"Source", "Target", "Status"}}
	for _, b := range report.LinkGraphSummary.BrokenLinks {
		links = append(links, []any{b.Source, b.Target, b.Status})
	}
	for _, o := range report.LinkGraphSummary.Orphans {
		links = append(links, []any{"(orphan)", o, ""})
	}
	if err := addSheet(f, SheetLinks, links, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func clickDepth(g crawler.LinkGraphSummary, u string) any {
	d, ok := g.ClickDepth[u]
	if !ok {
		return ""
	}
	return d
}

func addSheet(f *excelize.File, name string, rows [][]any, header int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeSheet(f, name, rows, header, 24)
}

// writeSheet writes rows starting at A1, bolds and freezes the header row and
// adds an autofilter over the table.
func writeSheet(f *excelize.File, name string, rows [][]any, header int, width float64) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	cols := len(rows[0])
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return fmt.Errorf("column name: %w", err)
	}
	if err := f.SetRowStyle(name, 1, 1, header); err != nil {
		return fmt.Errorf("style %s header: %w", name, err)
	}
	if err := f.SetColWidth(name, "A", last, width); err != nil {
		return fmt.Errorf("size %s columns: %w", name, err)
	}
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze %s header: %w", name, err)
	}
	if len(rows) > 1 {
		ref := "A1:" + last + strconv.Itoa(len(rows))
		if err := f.AutoFilter(name, ref, nil); err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
	}
	return nil
}
