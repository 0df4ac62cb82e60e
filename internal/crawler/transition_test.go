package crawler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyTransition(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := Job{ID: "j1", State: JobStatePending}

	require.NoError(t, ApplyTransition(&job, JobStateRunning, JobUpdate{At: at}))
	require.Equal(t, JobStateRunning, job.State)
	require.Equal(t, at, *job.StartedAt)
	require.Nil(t, job.FinishedAt)

	done := at.Add(time.Minute)
	result := json.RawMessage(`{"pages":[]}`)
	require.NoError(t, ApplyTransition(&job, JobStateFailure, JobUpdate{At: done, Result: result, Error: "Cancelled"}))
	require.Equal(t, done, *job.FinishedAt)
	require.Equal(t, "Cancelled", job.Error)
	require.JSONEq(t, `{"pages":[]}`, string(job.Result))

	err := ApplyTransition(&job, JobStateRunning, JobUpdate{})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, JobStateFailure, job.State)
}
