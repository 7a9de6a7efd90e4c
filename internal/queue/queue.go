// Package queue is the durable delivery job queue on Redis: a ready
// list consumed with BLMOVE, a processing list for in-flight jobs
// (leased, reaped back to ready on worker death), and a delayed zset
// holding backoff retries until they are due.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/doananhhung/livechat-sub002/internal/metrics"
	"github.com/doananhhung/livechat-sub002/internal/model"
)

const (
	keyReady      = "webhooks:jobs:ready"
	keyDelayed    = "webhooks:jobs:delayed"
	keyProcessing = "webhooks:jobs:processing"
	keyLease      = "webhooks:jobs:lease"

	promoteBatch = 100
	reapBatch    = 100
)

// promoteScript atomically moves due jobs from the delayed zset to the
// ready list so concurrent promoters cannot duplicate a job.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

// reapScript returns expired-lease jobs from the processing list to the
// ready list. A job whose worker died mid-delivery gets redelivered
// instead of sitting in processing forever; the attempt count is left
// untouched since the attempt never reached a terminal ledger state.
var reapScript = redis.NewScript(`
local stale = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(stale) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LREM', KEYS[2], 1, job)
	redis.call('LPUSH', KEYS[3], job)
end
return #stale
`)

// Queue implements the retry policy from the delivery design: exponential
// backoff from BackoffBase, at most MaxAttempts attempts, then the job is
// dropped. There is no dead-letter store; the ledger is the only record
// of exhausted jobs.
type Queue struct {
	rdb *redis.Client

	MaxAttempts int           // default 5
	BackoffBase time.Duration // default 1s

	// LeaseTimeout bounds how long a dequeued job may sit in the
	// processing list before the reaper returns it to ready. Must
	// exceed the delivery HTTP timeout plus the ledger writes.
	LeaseTimeout time.Duration // default 30s
}

func New(rdb *redis.Client, maxAttempts int, backoffBase time.Duration) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Queue{rdb: rdb, MaxAttempts: maxAttempts, BackoffBase: backoffBase, LeaseTimeout: 30 * time.Second}
}

// Enqueue pushes a first-attempt job onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, job model.DeliveryJob) error {
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, keyReady, raw).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("initial").Inc()
	return nil
}

// EnqueueAll bulk-enqueues first-attempt jobs in one pipeline.
func (q *Queue) EnqueueAll(ctx context.Context, jobs []model.DeliveryJob) error {
	if len(jobs) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, job := range jobs {
		if job.Attempt <= 0 {
			job.Attempt = 1
		}
		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		pipe.LPush(ctx, keyReady, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bulk enqueue: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("initial").Add(float64(len(jobs)))
	return nil
}

// Retry schedules the next attempt with backoff. Returns false when the
// job has exhausted its attempts and was dropped.
func (q *Queue) Retry(ctx context.Context, job model.DeliveryJob) (bool, error) {
	if job.Attempt >= q.MaxAttempts {
		metrics.DeliveriesTotal.WithLabelValues("dropped").Inc()
		return false, nil
	}
	delay := q.NextDelay(job.Attempt)
	job.Attempt++

	raw, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, keyDelayed, redis.Z{Score: due, Member: raw}).Err(); err != nil {
		return false, fmt.Errorf("schedule retry: %w", err)
	}
	metrics.JobsEnqueuedTotal.WithLabelValues("retry").Inc()
	return true, nil
}

// NextDelay returns the backoff after the given failed attempt:
// base, 2*base, 4*base, ...
func (q *Queue) NextDelay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return q.BackoffBase << (failedAttempt - 1)
}

// Dequeue blocks up to timeout for a ready job, moving it to the
// processing list under a lease. Returns (nil, "", nil) on timeout. The
// raw string must be passed back to Ack once the job reached a terminal
// state; an unacked job is requeued when its lease expires.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*model.DeliveryJob, string, error) {
	raw, err := q.rdb.BLMove(ctx, keyReady, keyProcessing, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("dequeue: %w", err)
	}

	deadline := float64(time.Now().Add(q.LeaseTimeout).UnixMilli())
	if err := q.rdb.ZAdd(ctx, keyLease, redis.Z{Score: deadline, Member: raw}).Err(); err != nil {
		return nil, "", fmt.Errorf("lease job: %w", err)
	}

	var job model.DeliveryJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// poison entry: drop it and its lease, surface the error
		q.remove(ctx, raw)
		return nil, "", fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, raw, nil
}

// Ack removes a finished job from the processing list and releases its
// lease.
func (q *Queue) Ack(ctx context.Context, raw string) error {
	return q.remove(ctx, raw)
}

func (q *Queue) remove(ctx context.Context, raw string) error {
	pipe := q.rdb.Pipeline()
	pipe.LRem(ctx, keyProcessing, 1, raw)
	pipe.ZRem(ctx, keyLease, raw)
	_, err := pipe.Exec(ctx)
	return err
}

// ReapStale returns jobs with an expired lease to the ready list.
func (q *Queue) ReapStale(ctx context.Context, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, q.rdb,
		[]string{keyLease, keyProcessing, keyReady},
		strconv.FormatInt(now.UnixMilli(), 10), reapBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reap stale jobs: %w", err)
	}
	if n > 0 {
		metrics.JobsEnqueuedTotal.WithLabelValues("reaped").Add(float64(n))
	}
	return n, nil
}

// PromoteDue moves jobs whose backoff has elapsed onto the ready list.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{keyDelayed, keyReady},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due jobs: %w", err)
	}
	return n, nil
}

// RunMaintenance ticks PromoteDue and ReapStale until ctx is cancelled.
func (q *Queue) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// transient redis errors just wait for the next tick
			_, _ = q.PromoteDue(ctx, time.Now())
			_, _ = q.ReapStale(ctx, time.Now())
		}
	}
}
