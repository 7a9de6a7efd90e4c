package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/doananhhung/livechat-sub002/internal/model"
)

// OutboxRepository defines persistence for the outbox table. Insert must
// run inside the caller's transaction so the event row commits or rolls
// back together with the domain write. LockBatch/DeleteBatch are used
// only by the relay.
type OutboxRepository interface {
	Insert(ctx context.Context, tx *sqlx.Tx, evt model.OutboxEvent) error
	Notify(ctx context.Context, tx *sqlx.Tx, channel string) error
	LockBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.OutboxEvent, error)
	DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct{}

func NewOutboxRepository() *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{}
}

// Insert adds an event row to the outbox within tx.
func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, evt model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := tx.ExecContext(ctx, q,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload,
	)
	return err
}

// Notify queues a pg_notify on the relay wake-up channel. Running it in
// the same tx means the notification only fires on commit.
func (r *OutboxRepositoryImpl) Notify(ctx context.Context, tx *sqlx.Tx, channel string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, '')`, channel)
	return err
}

// LockBatch selects up to limit rows in creation order, skipping rows
// locked by a concurrent relay instance.
func (r *OutboxRepositoryImpl) LockBatch(ctx context.Context, tx *sqlx.Tx, limit int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	var events []model.OutboxEvent
	if err := tx.SelectContext(ctx, &events, q, limit); err != nil {
		return nil, err
	}
	return events, nil
}

// DeleteBatch removes published rows, still within the drain tx.
func (r *OutboxRepositoryImpl) DeleteBatch(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM outbox_events WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	query = tx.Rebind(query)

	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
