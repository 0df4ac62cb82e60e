package crawler

import (
	"context"
	"time"
)

// JobStore is the job registry. Implementations must reject transitions that
// CanTransition does not allow and must be safe for concurrent readers.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJobState(ctx context.Context, jobID string, state JobState, update JobUpdate) error
	ListJobs(ctx context.Context, limit int) ([]Job, error)
}

// PageRecorder persists per-page results as they are produced.
type PageRecorder interface {
	RecordPage(ctx context.Context, jobID string, result PageResult) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes job completion events to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// RobotsChecker answers robots.txt questions for the crawling agent.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RetryPolicy classifies fetch errors and spaces out attempts.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Queue provides enqueue/dequeue semantics for submitted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Kind      JobKind
	Submitted int64
}
