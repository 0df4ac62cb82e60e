package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names a crawl milestone.
type Stage string

// Stages emitted by the job worker and the crawl orchestrator.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageFetchStart   Stage = "FETCH_START"
	StageFetchDone    Stage = "FETCH_DONE"
	StagePageAnalyzed Stage = "PAGE_ANALYZED"
)

// StatusClass buckets HTTP status codes.
type StatusClass string

// Status classes; StatusFailed marks fetches that never produced a response.
const (
	Status2xx    StatusClass = "2xx"
	Status3xx    StatusClass = "3xx"
	Status4xx    StatusClass = "4xx"
	Status5xx    StatusClass = "5xx"
	StatusFailed StatusClass = "failed"
)

// Event is one progress milestone for one job.
type Event struct {
	JobID       uuid.UUID
	TS          time.Time
	Stage       Stage
	Site        string
	URL         string
	Depth       int
	Bytes       int64
	Pages       int64
	Issues      int64
	StatusClass StatusClass
	Dur         time.Duration
	Note        string
}

// Validate rejects events that sinks could not attribute.
func (e Event) Validate() error {
	if e.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageFetchStart:
		if e.Site == "" {
			return errors.New("fetch start requires site")
		}
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StagePageAnalyzed:
		if e.URL == "" {
			return errors.New("page analyzed requires url")
		}
		if e.Issues < 0 {
			return errors.New("issue count must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// JobID parses a registry job ID. Malformed IDs yield uuid.Nil, which
// Validate rejects, so callers never need to branch on the error.
func JobID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

// ClassifyStatus buckets an HTTP status; zero means the fetch failed.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusFailed
	}
}
