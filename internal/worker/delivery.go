// Package worker runs the delivery worker pool: it consumes jobs from
// the delivery queue, records every attempt in the ledger and executes
// the signed webhook POST.
package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/metrics"
	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/util"
)

const (
	userAgent   = "livechat/1.0"
	eventHeader = "X-Livechat-Event"
	sigHeader   = "X-Hub-Signature-256"
)

// JobQueue is the queue surface the pool needs; *queue.Queue implements it.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*model.DeliveryJob, string, error)
	Ack(ctx context.Context, raw string) error
	Retry(ctx context.Context, job model.DeliveryJob) (bool, error)
}

// errRetryable marks delivery failures the queue should back off and retry.
var errRetryable = errors.New("retryable delivery failure")

// DeliveryPool executes webhook deliveries with a pool of goroutines.
// Each attempt gets its own ledger row; queue-level retries create new
// rows rather than updating old ones.
type DeliveryPool struct {
	Queue      JobQueue
	Subs       repository.SubscriptionsRepository
	Deliveries repository.DeliveriesRepository
	Client     *http.Client // must carry the hard per-call timeout

	Workers int // number of goroutines

	log *zap.Logger
}

func NewDeliveryPool(
	q JobQueue,
	subs repository.SubscriptionsRepository,
	deliveries repository.DeliveriesRepository,
	timeout time.Duration,
	workers int,
	log *zap.Logger,
) *DeliveryPool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if workers <= 0 {
		workers = 16
	}
	return &DeliveryPool{
		Queue:      q,
		Subs:       subs,
		Deliveries: deliveries,
		Client:     &http.Client{Timeout: timeout},
		Workers:    workers,
		log:        log,
	}
}

// Run blocks until ctx is cancelled and all workers drained.
func (p *DeliveryPool) Run(ctx context.Context) error {
	p.log.Info("delivery workers started", zap.Int("workers", p.Workers))

	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx)
		}()
	}
	wg.Wait()

	p.log.Info("delivery workers stopped")
	return nil
}

func (p *DeliveryPool) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, raw, err := p.Queue.Dequeue(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("dequeue failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if job == nil {
			continue // timeout, poll again
		}

		p.ProcessJob(ctx, *job)

		// ack must outlive a shutdown-cancelled ctx, or a finished job
		// stays leased in the processing list until the reaper
		// redelivers it
		if err := p.Queue.Ack(context.WithoutCancel(ctx), raw); err != nil {
			p.log.Warn("ack failed", zap.Error(err), zap.String("job_id", job.ID))
		}
	}
}

// ProcessJob runs one delivery attempt to a terminal ledger status and
// schedules a retry when the failure is retryable.
func (p *DeliveryPool) ProcessJob(ctx context.Context, job model.DeliveryJob) {
	err := p.attempt(ctx, job)
	if err == nil {
		metrics.DeliveriesTotal.WithLabelValues("success").Inc()
		return
	}

	metrics.DeliveriesTotal.WithLabelValues("failure").Inc()
	if !errors.Is(err, errRetryable) {
		return // terminal configuration failure, no retry
	}

	requeued, rerr := p.Queue.Retry(ctx, job)
	if rerr != nil {
		p.log.Error("retry scheduling failed", zap.Error(rerr), zap.String("job_id", job.ID))
		return
	}
	if !requeued {
		// attempts exhausted: the job is gone, only the ledger remembers
		p.log.Warn("delivery attempts exhausted",
			zap.String("job_id", job.ID),
			zap.String("subscription_id", job.SubscriptionID),
			zap.Int("attempts", job.Attempt),
		)
	}
}

func (p *DeliveryPool) attempt(ctx context.Context, job model.DeliveryJob) error {
	// Re-fetch fresh: activation or deletion between dispatch and
	// delivery must win over the enqueued snapshot.
	sub, err := p.Subs.Get(ctx, job.SubscriptionID, job.ProjectID)
	if err != nil {
		return fmt.Errorf("fetch subscription: %w: %w", err, errRetryable)
	}

	d := model.Delivery{
		ID:             util.NewULID(),
		SubscriptionID: job.SubscriptionID,
		EventID:        job.EventID,
		RequestPayload: job.Payload,
	}

	if sub == nil || !sub.IsActive {
		reason := "subscription is inactive"
		if sub == nil {
			reason = "subscription no longer exists"
			// no FK target to record the attempt against
			p.log.Info("dropping job for deleted subscription", zap.String("job_id", job.ID))
			return fmt.Errorf("%s", reason)
		}
		if err := p.Deliveries.InsertPending(ctx, d); err != nil {
			return fmt.Errorf("insert delivery row: %w: %w", err, errRetryable)
		}
		if err := p.Deliveries.MarkFailure(ctx, d.ID, nil, reason); err != nil {
			p.log.Error("mark failure failed", zap.Error(err), zap.String("delivery_id", d.ID))
		}
		return fmt.Errorf("%s", reason)
	}

	if err := p.Deliveries.InsertPending(ctx, d); err != nil {
		return fmt.Errorf("insert delivery row: %w: %w", err, errRetryable)
	}

	status, httpErr := p.post(ctx, sub, job)
	if httpErr == nil {
		if err := p.Deliveries.MarkSuccess(ctx, d.ID, status); err != nil {
			p.log.Error("mark success failed", zap.Error(err), zap.String("delivery_id", d.ID))
		}
		return nil
	}

	if err := p.Deliveries.MarkFailure(ctx, d.ID, &status, httpErr.Error()); err != nil {
		p.log.Error("mark failure failed", zap.Error(err), zap.String("delivery_id", d.ID))
	}
	return fmt.Errorf("%w: %w", httpErr, errRetryable)
}

// post signs and sends the webhook. The signature covers the exact
// bytes of the request body. Returns the response status, 0 when no
// response was received.
func (p *DeliveryPool) post(ctx context.Context, sub *model.Subscription, job model.DeliveryJob) (int, error) {
	body := []byte(job.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(eventHeader, job.Trigger)
	req.Header.Set(sigHeader, Sign(sub.Secret, body))

	res, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return res.StatusCode, fmt.Errorf("endpoint returned HTTP %d", res.StatusCode)
	}
	return res.StatusCode, nil
}

// Sign computes the X-Hub-Signature-256 header value:
// "sha256=" + hex(HMAC_SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
