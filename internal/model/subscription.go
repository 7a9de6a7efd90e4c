package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Subscription is a tenant-registered webhook endpoint. The secret is
// generated once at creation and never regenerated; the URL is validated
// against private ranges at creation time only.
type Subscription struct {
	ID            string    `db:"id"` // UUID
	ProjectID     string    `db:"project_id"`
	URL           string    `db:"url"`
	Secret        string    `db:"secret"`
	EventTriggers Triggers  `db:"event_triggers"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
}

// Triggers is the set of trigger names a subscription listens to,
// stored as a JSON array column.
type Triggers []string

// Value implements driver.Valuer so sqlx can write the jsonb column.
func (t Triggers) Value() (driver.Value, error) {
	if t == nil {
		t = Triggers{}
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for the jsonb column.
func (t *Triggers) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("triggers: unsupported scan type %T", src)
	}
}

func (t Triggers) Contains(trigger string) bool {
	for _, v := range t {
		if v == trigger {
			return true
		}
	}
	return false
}
