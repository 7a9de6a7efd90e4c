package model

import (
	"encoding/json"
	"time"
)

// Event is the envelope published on the bus (outbox payload column and
// Kafka message value share this shape).
type Event struct {
	ID        string          `json:"id"` // ULID, empty for some direct publishes
	ProjectID string          `json:"project_id"`
	Trigger   string          `json:"trigger"` // e.g. "message.created"
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
