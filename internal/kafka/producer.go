package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// Producer wraps a kafka-go Writer. The relay and the direct-publish
// path both go through it; the caller picks the message key — the
// aggregate id on the outbox path, the project id on direct publish —
// so hash partitioning keeps that key's events in order.
type Producer struct {
	w *kafka.Writer
}

func NewProducerFromConfig(c ProducerConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *Producer) Close() error { return p.w.Close() }
