// Package queue implements the durable Fulfillment Job queue on Redis.
//
// Jobs live in three structures: a ready zset scored by run-at time (which
// carries retry backoff), a leased zset scored by lease deadline, and a hash
// of job payloads. A reaper returns expired leases to the ready set, giving
// at-least-once delivery when a worker crashes mid-job. Terminally failed
// jobs land on a dead-letter list for inspection.
package queue

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/dequeue.lua
var dequeueScript string

//go:embed scripts/reap.lua
var reapScript string

const (
	keyReady  = "fq:ready"
	keyLeased = "fq:leased"
	keyJobs   = "fq:jobs"
	keyDead   = "fq:dead"
)

// Job is one unit of fulfillment work
type Job struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeadLetter is what lands on the dead-letter list
type DeadLetter struct {
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// Options configures queue behavior
type Options struct {
	MaxAttempts    int
	LeaseTimeout   time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
}

// DefaultOptions mirror the deployed configuration
func DefaultOptions() Options {
	return Options{
		MaxAttempts:    5,
		LeaseTimeout:   6 * time.Minute,
		BackoffBase:    5 * time.Second,
		BackoffCeiling: 5 * time.Minute,
	}
}

// Queue is a Redis-backed work queue with lease-based redelivery
type Queue struct {
	rdb     *redis.Client
	opts    Options
	dequeue *redis.Script
	reap    *redis.Script
}

// New creates a queue over an existing Redis connection
func New(rdb *redis.Client, opts Options) *Queue {
	return &Queue{
		rdb:     rdb,
		opts:    opts,
		dequeue: redis.NewScript(dequeueScript),
		reap:    redis.NewScript(reapScript),
	}
}

// Connect dials Redis and returns a queue
func Connect(addr, password string, db int, opts Options) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb, opts), nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Enqueue adds a fulfillment job for an order. Duplicate enqueues are
// tolerated: the worker's single-flight claim drops the loser.
func (q *Queue) Enqueue(ctx context.Context, orderID string) error {
	job := Job{
		ID:         uuid.New().String(),
		OrderID:    orderID,
		Attempt:    0,
		EnqueuedAt: time.Now().UTC(),
	}
	return q.push(ctx, job, time.Now())
}

func (q *Queue) push(ctx context.Context, job Job, runAt time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, keyJobs, job.ID, payload)
	pipe.ZAdd(ctx, keyReady, &redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to enqueue job for order %s: %w", job.OrderID, err)
	}
	return nil
}

// Dequeue leases the oldest due job. Returns nil when no job is due.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	now := time.Now()
	deadline := now.Add(q.opts.LeaseTimeout)

	result, err := q.dequeue.Run(ctx, q.rdb,
		[]string{keyReady, keyLeased, keyJobs},
		now.UnixMilli(), deadline.UnixMilli()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue script failed: %w", err)
	}

	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected dequeue result type %T", result)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Ack removes a completed job
func (q *Queue) Ack(ctx context.Context, job *Job) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyLeased, job.ID)
	pipe.HDel(ctx, keyJobs, job.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// Fail records a failed execution. Retryable failures below the attempt
// ceiling are re-queued with exponential backoff; everything else moves to
// the dead-letter list.
func (q *Queue) Fail(ctx context.Context, job *Job, reason string, retryable bool) error {
	next := job.Attempt + 1

	if !retryable || next >= q.opts.MaxAttempts {
		return q.deadLetter(ctx, job, reason)
	}

	retry := *job
	retry.Attempt = next
	payload, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	runAt := time.Now().Add(RetryDelay(q.opts, next))

	// Lease release and re-schedule must be one transaction: a crash
	// between them would drop the retry. The HSet overwrites the leased
	// payload under the same job ID, bumping the attempt counter.
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, keyLeased, retry.ID)
	pipe.HSet(ctx, keyJobs, retry.ID, payload)
	pipe.ZAdd(ctx, keyReady, &redis.Z{Score: float64(runAt.UnixMilli()), Member: retry.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to re-queue job for order %s: %w", retry.OrderID, err)
	}
	return nil
}

func (q *Queue) deadLetter(ctx context.Context, job *Job, reason string) error {
	entry, err := json.Marshal(DeadLetter{
		Job:      *job,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	pipe := q.rdb.TxPipeline()
	pipe.LPush(ctx, keyDead, entry)
	pipe.ZRem(ctx, keyLeased, job.ID)
	pipe.HDel(ctx, keyJobs, job.ID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

// ReapExpired returns jobs with expired leases to the ready set
func (q *Queue) ReapExpired(ctx context.Context) (int, error) {
	result, err := q.reap.Run(ctx, q.rdb,
		[]string{keyLeased, keyReady},
		time.Now().UnixMilli()).Result()
	if err != nil {
		return 0, fmt.Errorf("reap script failed: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected reap result type %T", result)
	}
	return int(n), nil
}

// RetryDelay computes the backoff before the given attempt runs again:
// base doubled per prior attempt, capped at the ceiling.
func RetryDelay(opts Options, attempt int) time.Duration {
	delay := opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= opts.BackoffCeiling {
			return opts.BackoffCeiling
		}
	}
	if delay > opts.BackoffCeiling {
		return opts.BackoffCeiling
	}
	return delay
}
