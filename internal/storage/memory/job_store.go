package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// JobStore is an in-process job registry.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.Job
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crawler.Job)}
}

// CreateJob registers a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob returns a copy of the job.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return job, nil
}

// UpdateJobState moves a job forward through its lifecycle.
func (s *JobStore) UpdateJobState(
	_ context.Context,
	jobID string,
	state crawler.JobState,
	update crawler.JobUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if err := crawler.ApplyTransition(&job, state, update); err != nil {
		return err
	}
	s.jobs[jobID] = job
	return nil
}

// ListJobs returns the newest jobs first. A limit of zero or less means all.
func (s *JobStore) ListJobs(_ context.Context, limit int) ([]crawler.Job, error) {
	s.mu.RLock()
	out := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b crawler.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
