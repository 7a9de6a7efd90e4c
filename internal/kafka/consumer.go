package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 50ms
}

// Message is the unit handed to the dispatcher; committing it marks the
// event as fanned out.
type Message = kafka.Message

// Consumer reads the event topic as part of a consumer group, so
// dispatcher replicas split partitions between them. Offsets are
// committed explicitly, after the delivery jobs for a message are
// enqueued.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumerFromConfig(c ConsumerConfig) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		CommitInterval: c.CommitInterval,
		MaxWait:        c.MaxWait,
		// a fresh consumer group starts at the oldest retained event,
		// not at the tail, so nothing relayed before startup is skipped
		StartOffset: kafka.FirstOffset,
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = 1 << 10
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = 10 << 20
	}
	if rc.CommitInterval <= 0 {
		rc.CommitInterval = time.Second
	}
	if rc.MaxWait <= 0 {
		rc.MaxWait = 50 * time.Millisecond
	}
	return &Consumer{r: kafka.NewReader(rc)}
}

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
