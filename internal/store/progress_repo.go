package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that no progress row exists for the job.
var ErrNotFound = errors.New("progress record not found")

// RunStatus is the lifecycle column of a crawl run row.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one crawl job as seen by the progress tables.
type Run struct {
	JobID        uuid.UUID  `json:"job_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// SiteDelta is an increment applied to one (job, host) row.
type SiteDelta struct {
	JobID       uuid.UUID
	Site        string
	StatusClass string
	Pages       int64
	Bytes       int64
	Issues      int64
	At          time.Time
}

// SiteStats aggregates progress for one host of a crawl.
type SiteStats struct {
	JobID      uuid.UUID `json:"job_id"`
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Pages      int64     `json:"pages"`
	BytesTotal int64     `json:"bytes_total"`
	Issues     int64     `json:"issues"`
	Fetch2xx   int64     `json:"fetch_2xx"`
	Fetch3xx   int64     `json:"fetch_3xx"`
	Fetch4xx   int64     `json:"fetch_4xx"`
	Fetch5xx   int64     `json:"fetch_5xx"`
	Failed     int64     `json:"failed"`
}

// ProgressRepository persists incremental crawl progress.
type ProgressRepository interface {
	StartRun(ctx context.Context, jobID uuid.UUID, startedAt time.Time) error
	FinishRun(ctx context.Context, jobID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	AddSiteStats(ctx context.Context, delta SiteDelta) error
	GetRun(ctx context.Context, jobID uuid.UUID) (Run, error)
	ListSiteStats(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
