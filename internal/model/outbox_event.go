package model

import "time"

// OutboxEvent is a row in the outbox table. A row's existence means
// "not yet relayed": rows are inserted together with the domain write
// and deleted by the relay after a successful publish, never updated.
type OutboxEvent struct {
	ID            string    `db:"id"`             // ULID
	AggregateType string    `db:"aggregate_type"` // e.g. "message"
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"` // e.g. "message.created"
	Payload       []byte    `db:"payload"`    // serialized Event envelope
	CreatedAt     time.Time `db:"created_at"`
}
