package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// PageStore writes one row per crawled page plus one row per issue. It
// implements crawler.PageRecorder.
type PageStore struct {
	pool   Pool
	pages  string
	issues string
}

// NewPageStore builds a PageStore over pool.
func NewPageStore(pool Pool, pagesTable, issuesTable string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	pages, err := tableName(pagesTable, "crawl_pages")
	if err != nil {
		return nil, err
	}
	issues, err := tableName(issuesTable, "crawl_issues")
	if err != nil {
		return nil, err
	}
	return &PageStore{pool: pool, pages: pages, issues: issues}, nil
}

// RecordPage inserts the page and its issues in one transaction. Re-recording
// a URL for the same job replaces the earlier rows.
func (s *PageStore) RecordPage(ctx context.Context, jobID string, result crawler.PageResult) (err error) {
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	page := result.Page
	headersJSON, err := json.Marshal(normalizeHeaders(page.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	pageSQL := fmt.Sprintf(`
INSERT INTO %s (
	job_id, url, final_url, depth, status_code, title, meta_description,
	canonical, word_count, load_time_ms, page_size_bytes, rendered,
	content_hash, blob_uri, fetch_error, headers, metrics
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (job_id, url) DO UPDATE SET
	final_url = EXCLUDED.final_url,
	status_code = EXCLUDED.status_code,
	title = EXCLUDED.title,
	meta_description = EXCLUDED.meta_description,
	fetch_error = EXCLUDED.fetch_error,
	metrics = EXCLUDED.metrics`, s.pages)
	if _, err = tx.Exec(ctx, pageSQL,
		jobID,
		page.URL,
		page.FinalURL,
		page.Depth,
		page.StatusCode,
		page.Title,
		page.MetaDescription,
		page.Canonical,
		page.WordCount,
		page.LoadTimeMS,
		page.PageSizeBytes,
		page.Rendered,
		page.ContentHash,
		page.BlobURI,
		page.FetchError,
		headersJSON,
		metricsJSON,
	); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}

	deleteSQL := fmt.Sprintf(`DELETE FROM %s WHERE job_id = $1 AND url = $2`, s.issues)
	if _, err = tx.Exec(ctx, deleteSQL, jobID, page.URL); err != nil {
		return fmt.Errorf("clear issues: %w", err)
	}
	if err = s.insertIssues(ctx, tx, jobID, result.Issues); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PageStore) insertIssues(ctx context.Context, tx pgx.Tx, jobID string, issues []crawler.Issue) error {
	issueSQL := fmt.Sprintf(`
INSERT INTO %s (job_id, url, position, category, code, severity, message, suggested_fix)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, s.issues)
	for i, issue := range issues {
		if _, err := tx.Exec(ctx, issueSQL,
			jobID,
			issue.URL,
			i,
			issue.Category,
			issue.Code,
			string(issue.Severity),
			issue.Message,
			issue.SuggestedFix,
		); err != nil {
			return fmt.Errorf("insert issue %s: %w", issue.Code, err)
		}
	}
	return nil
}

// IssueCount is one row of the per-code issue rollup.
type IssueCount struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Count    int64  `json:"count"`
}

// CountIssues returns how often each issue code occurred in a job, most
// frequent first.
func (s *PageStore) CountIssues(ctx context.Context, jobID string) ([]IssueCount, error) {
	query := fmt.Sprintf(`
SELECT code, severity, COUNT(*) AS n
FROM %s
WHERE job_id = $1
GROUP BY code, severity
ORDER BY n DESC, code ASC`, s.issues)
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	defer rows.Close()

	var out []IssueCount
	for rows.Next() {
		var c IssueCount
		if err := rows.Scan(&c.Code, &c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scan issue count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issue counts: %w", err)
	}
	return out, nil
}

func normalizeHeaders(h http.Header) map[string][]string {
	if len(h) == 0 {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(h))
	for k, values := range h {
		out[k] = append([]string(nil), values...)
	}
	return out
}
