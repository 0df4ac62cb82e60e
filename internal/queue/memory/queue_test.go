package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.QueueItem, 1)
	go func() {
		item, err := q.Dequeue(context.Background())
		if err == nil {
			result <- item
		}
	}()

	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{JobID: "job-1", Kind: crawler.JobKindCrawl}))
	select {
	case got := <-result:
		require.Equal(t, "job-1", got.JobID)
		require.Equal(t, crawler.JobKindCrawl, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancellation(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{JobID: "primed"}))
	err = q.Enqueue(ctx, crawler.QueueItem{JobID: "overflow"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, q.Len())
}

func TestQueueCloseDrainsThenReportsClosed(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), crawler.QueueItem{JobID: "pending"}))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.QueueItem{JobID: "late"}), crawler.ErrQueueClosed)

	item, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pending", item.JobID)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
}

func TestQueueCloseWakesBlockedDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, crawler.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not wake dequeue")
	}
}
