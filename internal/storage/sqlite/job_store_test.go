package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

func openStore(t *testing.T) *JobStore {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "registry", "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()

	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	job := crawler.Job{
		ID:        "job-1",
		Kind:      crawler.JobKindKeywordGap,
		State:     crawler.JobStatePending,
		CreatedAt: created,
		Params: crawler.JobParams{KeywordGap: &crawler.KeywordGapParams{
			DomainA: "a.com",
			DomainB: "b.com",
		}},
	}
	require.NoError(t, st.CreateJob(ctx, job))
	require.ErrorIs(t, st.CreateJob(ctx, job), crawler.ErrJobExists)

	got, err := st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, "b.com", got.Params.KeywordGap.DomainB)
	require.Nil(t, got.StartedAt)

	started := created.Add(time.Second)
	require.NoError(t, st.UpdateJobState(ctx, "job-1", crawler.JobStateRunning, crawler.JobUpdate{At: started}))
	require.NoError(t, st.UpdateJobState(ctx, "job-1", crawler.JobStateSuccess, crawler.JobUpdate{
		At:     started.Add(time.Minute),
		Result: json.RawMessage(`{"common":[]}`),
	}))

	got, err = st.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStateSuccess, got.State)
	require.Equal(t, started, *got.StartedAt)
	require.Equal(t, started.Add(time.Minute), *got.FinishedAt)
	require.JSONEq(t, `{"common":[]}`, string(got.Result))

	err = st.UpdateJobState(ctx, "job-1", crawler.JobStateFailure, crawler.JobUpdate{})
	require.ErrorIs(t, err, crawler.ErrInvalidTransition)

	_, err = st.GetJob(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, st.CreateJob(ctx, crawler.Job{
			ID:        id,
			Kind:      crawler.JobKindCrawl,
			State:     crawler.JobStatePending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	jobs, err := st.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "c", jobs[0].ID)

	all, err := st.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDefaultPathUsesDataHome(t *testing.T) {
	t.Parallel()
	require.True(t, strings.HasSuffix(DefaultPath(), filepath.Join("seo-site-crawler", "jobs.db")))
}
