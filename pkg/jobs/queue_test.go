package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("privacy", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "req-1"}))
}

func TestQueueRetriesThenReportsExhaustion(t *testing.T) {
	var calls int32
	exhausted := make(chan Job, 1)
	q := NewQueue("privacy", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, QueueConfig{
		MaxRetries:  2,
		RetryDelay:  5 * time.Millisecond,
		OnExhausted: func(_ context.Context, job Job, _ error) { exhausted <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "req-1", Type: "delete_user"}))

	select {
	case job := <-exhausted:
		assert.Equal(t, "req-1", job.ID)
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not reported as exhausted")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRestartDropsRetriesOfPreviousRun(t *testing.T) {
	handled := make(chan string, 8)
	q := NewQueue("privacy", func(_ context.Context, job Job) error {
		handled <- job.ID
		if job.ID == "req-1" {
			return errors.New("boom")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 50 * time.Millisecond})

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "req-1"}))
	select {
	case id := <-handled:
		require.Equal(t, "req-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("first job was not handled")
	}
	q.Stop()

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Enqueue(Job{ID: "req-2"}))
	select {
	case id := <-handled:
		require.Equal(t, "req-2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job enqueued after restart was not handled")
	}

	select {
	case id := <-handled:
		t.Fatalf("unexpected job %s after restart", id)
	case <-time.After(150 * time.Millisecond):
	}
}
