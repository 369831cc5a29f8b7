package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return time.Millisecond }

func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.PushTransactionJob {
	t.Helper()
	var last *jobs.PushTransactionJob
	require.Eventually(t, func() bool {
		job, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		last = job
		return job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func TestQueue_ProcessesJobs(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithWorkers(2), WithBackoff(noBackoff))
	ctx := context.Background()

	var handled atomic.Int32
	require.NoError(t, queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		handled.Add(1)
		return nil
	}))
	defer queue.Close()

	job := &jobs.PushTransactionJob{UserID: "u1", TransactionID: "local-1"}
	require.NoError(t, queue.PublishPushTransaction(ctx, job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, 3, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, int32(1), handled.Load())
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithBackoff(noBackoff))
	ctx := context.Background()

	var attempts atomic.Int32
	require.NoError(t, queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("remote unavailable")
		}
		return nil
	}))
	defer queue.Close()

	job := &jobs.PushTransactionJob{JobID: "j1", UserID: "u1", TransactionID: "local-1"}
	require.NoError(t, queue.PublishPushTransaction(ctx, job))

	done := waitForStatus(t, store, "j1", jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, store, WithBackoff(noBackoff))
	ctx := context.Background()

	require.NoError(t, queue.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("permission denied")
	}))
	defer queue.Close()

	job := &jobs.PushTransactionJob{JobID: "j1", MaxRetries: 1}
	require.NoError(t, queue.PublishPushTransaction(ctx, job))

	failed := waitForStatus(t, store, "j1", jobs.JobStatusFailed)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, "permission denied", failed.Error)
}

func TestQueue_ClosedQueueRejectsWork(t *testing.T) {
	queue := NewQueue(1, nil)
	require.NoError(t, queue.Close())
	require.NoError(t, queue.Close())

	err := queue.PublishPushTransaction(context.Background(), &jobs.PushTransactionJob{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)

	err = queue.Start(context.Background(), func(context.Context, jobs.Job) error { return nil })
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestQueue_PublishHonoursContext(t *testing.T) {
	queue := NewQueue(0, nil)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.PublishPushTransaction(ctx, &jobs.PushTransactionJob{})
	assert.ErrorIs(t, err, context.Canceled)
}
