package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/seo-site-crawler/internal/store"
)

// ProgressStore implements store.ProgressRepository. Runs live in
// <table>_runs and per-host counters in <table>_sites.
type ProgressStore struct {
	pool  Pool
	runs  string
	sites string
}

// NewProgressStore builds a ProgressStore over pool.
func NewProgressStore(pool Pool, table string) (*ProgressStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	base, err := tableName(table, "crawl_progress")
	if err != nil {
		return nil, err
	}
	return &ProgressStore{pool: pool, runs: base + "_runs", sites: base + "_sites"}, nil
}

// StartRun records a run as running. Replaying the start event is harmless.
func (s *ProgressStore) StartRun(ctx context.Context, jobID uuid.UUID, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (job_id, started_at, status)
VALUES ($1, $2, $3)
ON CONFLICT (job_id) DO NOTHING`, s.runs)
	if _, err := s.pool.Exec(ctx, query, jobID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun stamps the terminal status of a run.
func (s *ProgressStore) FinishRun(
	ctx context.Context,
	jobID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, error_message = $3
WHERE job_id = $4`, s.runs)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", jobID, store.ErrNotFound)
	}
	return nil
}

// AddSiteStats adds delta to the (job, site) row, creating it on first use.
func (s *ProgressStore) AddSiteStats(ctx context.Context, delta store.SiteDelta) error {
	var f2, f3, f4, f5, failed int64
	switch delta.StatusClass {
	case "2xx":
		f2 = delta.Pages
	case "3xx":
		f3 = delta.Pages
	case "4xx":
		f4 = delta.Pages
	case "5xx":
		f5 = delta.Pages
	case "failed":
		failed = delta.Pages
	case "":
	default:
		return fmt.Errorf("unknown status class: %s", delta.StatusClass)
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (job_id, site, last_update, pages, bytes_total, issues, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx, failed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (job_id, site) DO UPDATE SET
	last_update = GREATEST(%[1]s.last_update, EXCLUDED.last_update),
	pages = %[1]s.pages + EXCLUDED.pages,
	bytes_total = %[1]s.bytes_total + EXCLUDED.bytes_total,
	issues = %[1]s.issues + EXCLUDED.issues,
	fetch_2xx = %[1]s.fetch_2xx + EXCLUDED.fetch_2xx,
	fetch_3xx = %[1]s.fetch_3xx + EXCLUDED.fetch_3xx,
	fetch_4xx = %[1]s.fetch_4xx + EXCLUDED.fetch_4xx,
	fetch_5xx = %[1]s.fetch_5xx + EXCLUDED.fetch_5xx,
	failed = %[1]s.failed + EXCLUDED.failed`, s.sites)
	_, err := s.pool.Exec(ctx, query,
		delta.JobID,
		delta.Site,
		delta.At,
		delta.Pages,
		delta.Bytes,
		delta.Issues,
		f2, f3, f4, f5, failed,
	)
	if err != nil {
		return fmt.Errorf("add site stats: %w", err)
	}
	return nil
}

// GetRun loads one run.
func (s *ProgressStore) GetRun(ctx context.Context, jobID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT job_id, started_at, finished_at, status, error_message
FROM %s
WHERE job_id = $1`, s.runs)
	var run store.Run
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&run.JobID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListSiteStats pages through the per-host rows of a run, busiest first.
func (s *ProgressStore) ListSiteStats(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	query := fmt.Sprintf(`
SELECT job_id, site, last_update, pages, bytes_total, issues, fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx, failed
FROM %s
WHERE job_id = $1
ORDER BY pages DESC, site ASC
LIMIT $2 OFFSET $3`, s.sites)
	rows, err := s.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list site stats: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var st store.SiteStats
		if err := rows.Scan(
			&st.JobID,
			&st.Site,
			&st.LastUpdate,
			&st.Pages,
			&st.BytesTotal,
			&st.Issues,
			&st.Fetch2xx,
			&st.Fetch3xx,
			&st.Fetch4xx,
			&st.Fetch5xx,
			&st.Failed,
		); err != nil {
			return nil, fmt.Errorf("scan site stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site stats: %w", err)
	}
	return stats, nil
}
