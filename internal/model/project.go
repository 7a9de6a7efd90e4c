package model

import "time"

// Project is the tenant boundary. Subscription matching, listing and
// delivery history are all scoped by project.
type Project struct {
	ID        string    `db:"id"` // UUID
	Name      string    `db:"name"`
	APIKey    string    `db:"api_key"`
	CreatedAt time.Time `db:"created_at"`
}
