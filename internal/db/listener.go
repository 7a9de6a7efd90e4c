package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Listener holds a dedicated pgx connection subscribed to a NOTIFY
// channel. The relay uses it as its low-latency wake-up; a fallback
// timer covers missed notifications.
type Listener struct {
	conn    *pgx.Conn
	channel string
}

// NewListener connects and issues LISTEN on the given channel.
func NewListener(ctx context.Context, dsn, channel string) (*Listener, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("listener connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return &Listener{conn: conn, channel: channel}, nil
}

// Wait blocks until a notification arrives or ctx is done.
func (l *Listener) Wait(ctx context.Context) error {
	_, err := l.conn.WaitForNotification(ctx)
	return err
}

func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
