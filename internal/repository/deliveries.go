package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/doananhhung/livechat-sub002/internal/model"
)

// DeliveriesRepository persists the append-only delivery ledger. A row
// is inserted as PENDING right before the HTTP attempt and flipped to a
// terminal status exactly once; retries insert fresh rows.
type DeliveriesRepository interface {
	InsertPending(ctx context.Context, d model.Delivery) error
	MarkSuccess(ctx context.Context, id string, responseStatus int) error
	// MarkFailure records a terminal failure; responseStatus is nil when
	// no HTTP call was made (missing/inactive subscription), 0 when the
	// call got no response (timeout, network error).
	MarkFailure(ctx context.Context, id string, responseStatus *int, errMsg string) error
	ListBySubscription(ctx context.Context, subscriptionID, projectID string, limit, offset int) ([]model.Delivery, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

func (r *DeliveriesRepositoryImpl) InsertPending(ctx context.Context, d model.Delivery) error {
	const q = `
		INSERT INTO webhook_deliveries
		    (id, subscription_id, event_id, status, request_payload, created_at)
		VALUES
		    ($1, $2, $3, 'PENDING', $4, NOW())
	`
	_, err := r.db.ExecContext(ctx, q, d.ID, d.SubscriptionID, d.EventID, d.RequestPayload)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkSuccess(ctx context.Context, id string, responseStatus int) error {
	const q = `UPDATE webhook_deliveries SET status = 'SUCCESS', response_status = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, responseStatus)
	return err
}

func (r *DeliveriesRepositoryImpl) MarkFailure(ctx context.Context, id string, responseStatus *int, errMsg string) error {
	const q = `UPDATE webhook_deliveries SET status = 'FAILURE', response_status = $2, error = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, responseStatus, errMsg)
	return err
}

// ListBySubscription returns delivery history for the audit view, newest
// first. The join enforces the tenant boundary.
func (r *DeliveriesRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID, projectID string, limit, offset int) ([]model.Delivery, error) {
	const q = `
		SELECT d.id, d.subscription_id, d.event_id, d.status, d.request_payload,
		       d.response_status, d.error, d.created_at
		FROM webhook_deliveries d
		JOIN webhook_subscriptions s ON s.id = d.subscription_id
		WHERE d.subscription_id = $1 AND s.project_id = $2
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $3 OFFSET $4
	`
	var rows []model.Delivery
	if err := r.db.SelectContext(ctx, &rows, q, subscriptionID, projectID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
