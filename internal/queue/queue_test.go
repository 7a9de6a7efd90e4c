package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doananhhung/livechat-sub002/internal/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, 5, time.Second)
}

func TestNextDelay_DoublesPerAttempt(t *testing.T) {
	q := New(nil, 5, time.Second)

	cases := []struct {
		failedAttempt int
		want          time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{0, 1 * time.Second}, // clamped
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, q.NextDelay(tc.failedAttempt), "attempt %d", tc.failedAttempt)
	}
}

func TestNextDelay_UsesConfiguredBase(t *testing.T) {
	q := New(nil, 5, 250*time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, q.NextDelay(1))
	assert.Equal(t, time.Second, q.NextDelay(3))
}

func TestNew_AppliesDefaults(t *testing.T) {
	q := New(nil, 0, 0)
	assert.Equal(t, 5, q.MaxAttempts)
	assert.Equal(t, time.Second, q.BackoffBase)
}

func TestDequeueAck_ReleasesProcessingAndLease(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.DeliveryJob{ID: "job-1", Attempt: 1}))

	job, raw, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)

	// in flight: the job sits in processing under a lease
	n, err := q.rdb.LLen(ctx, keyProcessing).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	leased, err := q.rdb.ZCard(ctx, keyLease).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, leased)

	require.NoError(t, q.Ack(ctx, raw))

	n, err = q.rdb.LLen(ctx, keyProcessing).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	leased, err = q.rdb.ZCard(ctx, keyLease).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, leased)
}

func TestReapStale_RequeuesAbandonedJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.DeliveryJob{ID: "job-1", Attempt: 2}))

	// dequeue and never ack, as if the worker died mid-delivery
	job, _, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)

	// before the lease expires nothing is touched
	n, err := q.ReapStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.ReapStale(ctx, time.Now().Add(q.LeaseTimeout+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inFlight, err := q.rdb.LLen(ctx, keyProcessing).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, inFlight)
	leased, err := q.rdb.ZCard(ctx, keyLease).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, leased)

	// redelivered with the attempt count unchanged
	again, _, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "job-1", again.ID)
	assert.Equal(t, 2, again.Attempt)
}

func TestPromoteDue_MovesDueRetriesToReady(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	rescheduled, err := q.Retry(ctx, model.DeliveryJob{ID: "job-1", Attempt: 1})
	require.NoError(t, err)
	require.True(t, rescheduled)

	// backoff not elapsed yet
	n, err := q.PromoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.PromoteDue(ctx, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, _, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, 2, job.Attempt)
}

func TestRetry_DropsExhaustedJobWithoutRedisAccess(t *testing.T) {
	// rdb is nil: an exhausted job must be dropped before any redis call
	q := New(nil, 5, time.Second)

	rescheduled, err := q.Retry(context.Background(), model.DeliveryJob{ID: "job-1", Attempt: 5})
	require.NoError(t, err)
	assert.False(t, rescheduled)

	rescheduled, err = q.Retry(context.Background(), model.DeliveryJob{ID: "job-2", Attempt: 6})
	require.NoError(t, err)
	assert.False(t, rescheduled)
}
