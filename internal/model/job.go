package model

import "encoding/json"

// DeliveryJob is the unit of work on the delivery queue: one job per
// (event, matching subscription) pair. Attempt starts at 1 and is
// incremented by the queue on each retry.
type DeliveryJob struct {
	ID             string          `json:"id"` // ULID
	ProjectID      string          `json:"project_id"`
	SubscriptionID string          `json:"subscription_id"`
	EventID        string          `json:"event_id"` // idempotency hint for receivers, not a dedup key
	Trigger        string          `json:"trigger"`
	Payload        json.RawMessage `json:"payload"`
	Attempt        int             `json:"attempt"`
}
