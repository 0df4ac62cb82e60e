package crawler

import (
	"context"
	"time"
)

// AwaitJob polls store until the job reaches a terminal state or ctx ends.
// On ctx expiry it returns the last observed job together with ctx.Err().
func AwaitJob(ctx context.Context, store JobStore, jobID string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
