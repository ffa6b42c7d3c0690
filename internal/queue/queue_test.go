package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelaySchedule(t *testing.T) {
	opts := Options{
		BackoffBase:    5 * time.Second,
		BackoffCeiling: 5 * time.Minute,
	}

	assert.Equal(t, 5*time.Second, RetryDelay(opts, 1))
	assert.Equal(t, 10*time.Second, RetryDelay(opts, 2))
	assert.Equal(t, 20*time.Second, RetryDelay(opts, 3))
	assert.Equal(t, 40*time.Second, RetryDelay(opts, 4))
	assert.Equal(t, 80*time.Second, RetryDelay(opts, 5))
}

func TestRetryDelayCeiling(t *testing.T) {
	opts := Options{
		BackoffBase:    5 * time.Second,
		BackoffCeiling: 60 * time.Second,
	}

	assert.Equal(t, 40*time.Second, RetryDelay(opts, 4))
	assert.Equal(t, 60*time.Second, RetryDelay(opts, 5))
	assert.Equal(t, 60*time.Second, RetryDelay(opts, 50))
}

func TestRetryDelayBaseAboveCeiling(t *testing.T) {
	opts := Options{
		BackoffBase:    10 * time.Minute,
		BackoffCeiling: 5 * time.Minute,
	}

	assert.Equal(t, 5*time.Minute, RetryDelay(opts, 1))
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 5, opts.MaxAttempts)
	assert.Equal(t, 6*time.Minute, opts.LeaseTimeout)
	assert.True(t, opts.BackoffBase < opts.BackoffCeiling)
}

// Integration tests require a live Redis; run them against a disposable
// instance.

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	t.Skip("Integration test - requires Redis")

	q, err := Connect("localhost:6379", "", 15, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueueDequeueAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "order-1"))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "order-1", job.OrderID)
	assert.Equal(t, 0, job.Attempt)

	// The job is leased, not ready: a second dequeue finds nothing.
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, q.Ack(ctx, job))
}

func TestFailRetryableRequeuesWithBackoff(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "order-1"))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job, "transient automation error", true))

	// Not due yet: the retry is scheduled behind the backoff delay.
	early, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, early)

	// The payload must survive the re-schedule: same job ID in the jobs
	// hash with the attempt bumped, scored into the ready set, lease gone.
	raw, err := q.rdb.HGet(ctx, keyJobs, job.ID).Result()
	require.NoError(t, err)
	var retry Job
	require.NoError(t, json.Unmarshal([]byte(raw), &retry))
	assert.Equal(t, job.Attempt+1, retry.Attempt)

	_, err = q.rdb.ZScore(ctx, keyReady, job.ID).Result()
	require.NoError(t, err)
	_, err = q.rdb.ZScore(ctx, keyLeased, job.ID).Result()
	assert.Equal(t, redis.Nil, err)
}

func TestFailFatalDeadLetters(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "order-1"))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Fail(ctx, job, "order not found", false))

	gone, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReapExpiredRedelivers(t *testing.T) {
	q := newTestQueue(t)
	q.opts.LeaseTimeout = 50 * time.Millisecond
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "order-1"))
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(100 * time.Millisecond)

	n, err := q.ReapExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	redelivered, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, job.ID, redelivered.ID)
}
