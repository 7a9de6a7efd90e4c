// Package dispatch subscribes to the bus and fans each event out to one
// delivery job per matching active subscription.
package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/kafka"
	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/util"
)

// Consumer is the bus read side (Kafka consumer group in production).
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Enqueuer is the delivery queue write side.
type Enqueuer interface {
	EnqueueAll(ctx context.Context, jobs []model.DeliveryJob) error
}

// Dispatcher matches bus events against the subscription registry.
// Offsets are committed after enqueue, so a crash in between redelivers
// the event (at-least-once end to end).
type Dispatcher struct {
	consumer Consumer
	subs     repository.SubscriptionsRepository
	queue    Enqueuer
	log      *zap.Logger
}

func New(consumer Consumer, subs repository.SubscriptionsRepository, queue Enqueuer, log *zap.Logger) *Dispatcher {
	return &Dispatcher{consumer: consumer, subs: subs, queue: queue, log: log}
}

// Run consumes the bus until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("webhook dispatcher started")
	for {
		m, err := d.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("webhook dispatcher stopped")
				return nil
			}
			d.log.Warn("bus fetch failed", zap.Error(err))
			time.Sleep(200 * time.Millisecond)
			continue
		}

		if err := d.handle(ctx, m.Value); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// leave the offset uncommitted so the event is redelivered
			d.log.Warn("event handling failed, will be redelivered", zap.Error(err))
			continue
		}

		if err := d.consumer.Commit(ctx, m); err != nil && ctx.Err() == nil {
			d.log.Warn("offset commit failed", zap.Error(err))
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, value []byte) error {
	var evt model.Event
	if err := json.Unmarshal(value, &evt); err != nil || evt.ProjectID == "" || evt.Trigger == "" {
		// poison message: log and move on, there is nothing to retry
		d.log.Error("malformed event on bus, skipping",
			zap.Error(err),
			zap.ByteString("value", value),
		)
		return nil
	}

	matches, err := d.subs.ListActiveByTrigger(ctx, evt.ProjectID, evt.Trigger)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	// eventId falls back to a timestamp when the event carries no id:
	// an idempotency hint for receivers, not a dedup key.
	eventID := evt.ID
	if eventID == "" {
		eventID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	jobs := make([]model.DeliveryJob, 0, len(matches))
	for _, sub := range matches {
		jobs = append(jobs, model.DeliveryJob{
			ID:             util.NewULID(),
			ProjectID:      evt.ProjectID,
			SubscriptionID: sub.ID,
			EventID:        eventID,
			Trigger:        evt.Trigger,
			Payload:        evt.Payload,
			Attempt:        1,
		})
	}

	if err := d.queue.EnqueueAll(ctx, jobs); err != nil {
		return err
	}

	d.log.Debug("event dispatched",
		zap.String("trigger", evt.Trigger),
		zap.String("project_id", evt.ProjectID),
		zap.Int("jobs", len(jobs)),
	)
	return nil
}
