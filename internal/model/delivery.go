package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailure DeliveryStatus = "FAILURE"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliverySuccess || s == DeliveryFailure
}

// Delivery is one row in the delivery ledger. Every attempt gets its own
// row; a queue-level retry inserts a new row instead of updating the
// previous one, so the table is a full attempt history.
type Delivery struct {
	ID             string         `db:"id"` // ULID
	SubscriptionID string         `db:"subscription_id"`
	EventID        string         `db:"event_id"`
	Status         DeliveryStatus `db:"status"`
	RequestPayload []byte         `db:"request_payload"`
	ResponseStatus *int           `db:"response_status"` // nil until an attempt finishes; 0 = no response
	Error          *string        `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
}
