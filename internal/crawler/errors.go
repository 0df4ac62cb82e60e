package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned by registries for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job ID is registered twice.
	ErrJobExists = errors.New("job already exists")
	// ErrInvalidTransition is returned when a state change would move backwards or leave a terminal state.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrRedirectLoop means a URL repeated within one redirect chain.
	ErrRedirectLoop = errors.New("redirect loop")
	// ErrTooManyRedirects means the redirect chain exceeded the hop limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrCancelled marks a job stopped by request.
	ErrCancelled = errors.New("Cancelled") //nolint:staticcheck // surfaced verbatim as the failure reason
	// ErrBudgetExceeded marks a job that ran past its wall-clock budget.
	ErrBudgetExceeded = errors.New("job budget exceeded")
	// ErrJobFatal marks pool-wide failure such as every worker crashing.
	ErrJobFatal = errors.New("job fatal")
	// ErrQueueClosed is returned by queues after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError records a failed fetch of one URL. It never aborts a job.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (attempts=%d): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AnalyzerError records one analyzer failing on one page.
type AnalyzerError struct {
	Analyzer string
	URL      string
	Err      error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer %s failed on %s: %v", e.Analyzer, e.URL, e.Err)
}

func (e *AnalyzerError) Unwrap() error { return e.Err }

// TransitionError explains a rejected state change.
func TransitionError(jobID string, from, to JobState) error {
	return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, jobID, from, to)
}
