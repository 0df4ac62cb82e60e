// Package sqlite keeps the job registry in a local SQLite file. It suits the
// CLI and single-node deployments where results should survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

const appName = "seo-site-crawler"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	state       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	started_at  INTEGER,
	finished_at INTEGER,
	params      TEXT NOT NULL,
	result      TEXT,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`

// DefaultPath is the registry file under the XDG data directory.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, appName, "jobs.db")
}

// JobStore implements crawler.JobStore on SQLite.
type JobStore struct {
	db *sql.DB
}

// Open opens or creates the registry at path. An empty path means DefaultPath.
func Open(ctx context.Context, path string) (*JobStore, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	// One writer; reads queue behind it but stay consistent.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Ping checks the database handle.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *JobStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	return nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, state, created_at, started_at, finished_at, params, result, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		job.ID,
		string(job.Kind),
		string(job.State),
		job.CreatedAt.UnixNano(),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		string(params),
		nullJSON(job.Result),
		job.Error,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectJob = `SELECT id, kind, state, created_at, started_at, finished_at, params, result, error FROM jobs`

func scanJob(row rowScanner) (crawler.Job, error) {
	var (
		job                 crawler.Job
		kind, state, params string
		created             int64
		started, finished   sql.NullInt64
		result              sql.NullString
	)
	if err := row.Scan(&job.ID, &kind, &state, &created, &started, &finished, &params, &result, &job.Error); err != nil {
		return crawler.Job{}, err
	}
	job.Kind = crawler.JobKind(kind)
	job.State = crawler.JobState(state)
	job.CreatedAt = time.Unix(0, created).UTC()
	job.StartedAt = fromNull(started)
	job.FinishedAt = fromNull(finished)
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return crawler.Job{}, fmt.Errorf("decode params: %w", err)
	}
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}
	return job, nil
}

// GetJob loads one job.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	return s.getJob(ctx, s.db, jobID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *JobStore) getJob(ctx context.Context, q querier, jobID string) (crawler.Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, selectJob+" WHERE id = ?", jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
		}
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// UpdateJobState applies a transition inside a transaction.
func (s *JobStore) UpdateJobState(
	ctx context.Context,
	jobID string,
	state crawler.JobState,
	update crawler.JobUpdate,
) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	job, err := s.getJob(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err = crawler.ApplyTransition(&job, state, update); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
UPDATE jobs SET state = ?, started_at = ?, finished_at = ?, result = ?, error = ?
WHERE id = ?`,
		string(job.State),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		nullJSON(job.Result),
		job.Error,
		job.ID,
	); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListJobs returns the newest jobs first. A limit of zero or less means all.
func (s *JobStore) ListJobs(ctx context.Context, limit int) ([]crawler.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectJob+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []crawler.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
