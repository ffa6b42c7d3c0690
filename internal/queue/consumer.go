package queue

import (
	"context"
	"sync"
	"time"

	"fulfillment-service/internal/fulfillment"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// Handler processes one leased job. A nil return acks the job; an error is
// classified via the fulfillment taxonomy to decide retry vs dead-letter.
type Handler func(ctx context.Context, job *Job) error

// Consumer drains the queue with a bounded pool of workers
type Consumer struct {
	queue        *Queue
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	reapInterval time.Duration
	logger       *zap.Logger

	wg sync.WaitGroup
}

// NewConsumer creates a consumer with the given worker count
func NewConsumer(q *Queue, handler Handler, concurrency int) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		queue:        q,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: 500 * time.Millisecond,
		reapInterval: 30 * time.Second,
		logger:       util.GetLogger(),
	}
}

// Start launches the worker pool and the lease reaper. It blocks until ctx
// is cancelled and all in-flight jobs have finished.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("Starting queue consumer", zap.Int("concurrency", c.concurrency))

	c.wg.Add(1)
	go c.reapLoop(ctx)

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workLoop(ctx)
	}

	c.wg.Wait()
	c.logger.Info("Queue consumer stopped")
}

func (c *Consumer) workLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Dequeue failed", zap.Error(err))
			c.sleep(ctx, c.pollInterval)
			continue
		}
		if job == nil {
			c.sleep(ctx, c.pollInterval)
			continue
		}

		c.process(ctx, job)
	}
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	start := time.Now()
	err := c.handler(ctx, job)
	util.JobDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if ackErr := c.queue.Ack(ctx, job); ackErr != nil {
			c.logger.Error("Failed to ack job",
				zap.String("job_id", job.ID),
				zap.String("order_id", job.OrderID),
				zap.Error(ackErr))
		}
		util.JobsProcessedTotal.WithLabelValues("ok").Inc()
		return
	}

	retryable := fulfillment.Retryable(err)
	c.logger.Warn("Job failed",
		zap.String("job_id", job.ID),
		zap.String("order_id", job.OrderID),
		zap.Int("attempt", job.Attempt),
		zap.Bool("retryable", retryable),
		zap.Error(err))

	if retryable {
		util.JobsProcessedTotal.WithLabelValues("retry").Inc()
	} else {
		util.JobsProcessedTotal.WithLabelValues("fatal").Inc()
	}

	if failErr := c.queue.Fail(ctx, job, err.Error(), retryable); failErr != nil {
		c.logger.Error("Failed to record job failure",
			zap.String("job_id", job.ID),
			zap.Error(failErr))
	}
}

func (c *Consumer) reapLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.queue.ReapExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Error("Lease reap failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				c.logger.Warn("Redelivered jobs with expired leases", zap.Int("count", n))
				util.JobsReapedTotal.Add(float64(n))
			}
		}
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
