// Package relay drains the outbox table onto the bus. Any number of
// relay instances may run against the same database; row locking with
// SKIP LOCKED keeps them from double-processing a row.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/doananhhung/livechat-sub002/internal/metrics"
	"github.com/doananhhung/livechat-sub002/internal/repository"
)

// Publisher is the bus write side used during a drain.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Notifier delivers low-latency wake-ups (pg NOTIFY in production).
type Notifier interface {
	Wait(ctx context.Context) error
}

// Relay moves committed outbox rows to the bus and deletes them, one
// bounded batch per drain transaction. It wakes on a notification or on
// the fallback ticker, so forward progress never depends on
// notifications alone.
type Relay struct {
	DB        *sqlx.DB
	Outbox    repository.OutboxRepository
	Publisher Publisher
	Notifier  Notifier // optional; ticker-only when nil

	BatchSize        int           // default 100
	FallbackInterval time.Duration // default 60s

	log *zap.Logger
}

func New(db *sqlx.DB, outbox repository.OutboxRepository, publisher Publisher, notifier Notifier, log *zap.Logger) *Relay {
	return &Relay{
		DB:               db,
		Outbox:           outbox,
		Publisher:        publisher,
		Notifier:         notifier,
		BatchSize:        100,
		FallbackInterval: 60 * time.Second,
		log:              log,
	}
}

// Run blocks until ctx is cancelled. Drain errors are logged and the
// relay waits for the next trigger; rows are never discarded.
func (r *Relay) Run(ctx context.Context) error {
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}
	if r.FallbackInterval <= 0 {
		r.FallbackInterval = 60 * time.Second
	}

	notifyCh := make(chan struct{}, 1)
	if r.Notifier != nil {
		go r.pumpNotifications(ctx, notifyCh)
	}

	ticker := time.NewTicker(r.FallbackInterval)
	defer ticker.Stop()

	r.log.Info("outbox relay started",
		zap.Int("batch_size", r.BatchSize),
		zap.Duration("fallback_interval", r.FallbackInterval),
	)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return nil
		case <-notifyCh:
		case <-ticker.C:
		}

		if err := r.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("outbox drain failed, batch rolled back", zap.Error(err))
		}
	}
}

func (r *Relay) pumpNotifications(ctx context.Context, out chan<- struct{}) {
	for {
		if err := r.Notifier.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("notification wait failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		select {
		case out <- struct{}{}:
		default: // a wake-up is already pending
		}
	}
}

// Drain runs batches until the outbox is empty. Each batch either fully
// publishes-and-deletes or rolls back as a whole.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		n, err := r.DrainOnce(ctx)
		if err != nil {
			return err
		}
		if n < r.BatchSize {
			return nil
		}
	}
}

// DrainOnce processes a single batch and returns the number of rows
// relayed. Publish happens before the delete commits, so a crash in
// between republishes the batch: consumers must tolerate duplicates.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin drain tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	events, err := r.Outbox.LockBatch(ctx, tx, r.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("lock batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(events))
	for _, evt := range events {
		if err := r.Publisher.Publish(ctx, evt.AggregateID, evt.Payload); err != nil {
			return 0, fmt.Errorf("publish event %s: %w", evt.ID, err)
		}
		ids = append(ids, evt.ID)
	}

	if err := r.Outbox.DeleteBatch(ctx, tx, ids); err != nil {
		return 0, fmt.Errorf("delete batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit drain tx: %w", err)
	}

	metrics.EventsRelayedTotal.Add(float64(len(ids)))
	r.log.Debug("outbox batch relayed", zap.Int("count", len(ids)))

	return len(ids), nil
}
