package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/doananhhung/livechat-sub002/internal/model"
)

// SubscriptionsRepository defines tenant-scoped persistence for webhook
// subscriptions. Every read and write is bound to a project id.
type SubscriptionsRepository interface {
	Insert(ctx context.Context, sub model.Subscription) error
	Get(ctx context.Context, id, projectID string) (*model.Subscription, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Subscription, error)
	ListActiveByTrigger(ctx context.Context, projectID, trigger string) ([]model.Subscription, error)
	Delete(ctx context.Context, id, projectID string) (bool, error)
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

func (r *SubscriptionsRepositoryImpl) Insert(ctx context.Context, sub model.Subscription) error {
	const q = `
		INSERT INTO webhook_subscriptions
		    (id, project_id, url, secret, event_triggers, is_active, created_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := r.db.ExecContext(ctx, q,
		sub.ID, sub.ProjectID, sub.URL, sub.Secret, sub.EventTriggers, sub.IsActive,
	)
	return err
}

// Get returns the subscription or (nil, nil) when no row matches the
// (id, project) pair.
func (r *SubscriptionsRepositoryImpl) Get(ctx context.Context, id, projectID string) (*model.Subscription, error) {
	const q = `
		SELECT id, project_id, url, secret, event_triggers, is_active, created_at
		FROM webhook_subscriptions
		WHERE id = $1 AND project_id = $2
	`
	var sub model.Subscription
	if err := r.db.GetContext(ctx, &sub, q, id, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionsRepositoryImpl) ListByProject(ctx context.Context, projectID string) ([]model.Subscription, error) {
	const q = `
		SELECT id, project_id, url, secret, event_triggers, is_active, created_at
		FROM webhook_subscriptions
		WHERE project_id = $1
		ORDER BY created_at DESC
	`
	var subs []model.Subscription
	if err := r.db.SelectContext(ctx, &subs, q, projectID); err != nil {
		return nil, err
	}
	return subs, nil
}

// ListActiveByTrigger returns active subscriptions of the project whose
// trigger set contains the given trigger, using jsonb containment.
func (r *SubscriptionsRepositoryImpl) ListActiveByTrigger(ctx context.Context, projectID, trigger string) ([]model.Subscription, error) {
	const q = `
		SELECT id, project_id, url, secret, event_triggers, is_active, created_at
		FROM webhook_subscriptions
		WHERE project_id = $1
		  AND is_active
		  AND event_triggers @> to_jsonb($2::text)
	`
	var subs []model.Subscription
	if err := r.db.SelectContext(ctx, &subs, q, projectID, trigger); err != nil {
		return nil, err
	}
	return subs, nil
}

// Delete removes the subscription; deliveries go with it via FK cascade.
// Returns false when nothing matched.
func (r *SubscriptionsRepositoryImpl) Delete(ctx context.Context, id, projectID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE id = $1 AND project_id = $2`, id, projectID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
