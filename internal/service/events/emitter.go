package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/doananhhung/livechat-sub002/internal/model"
	"github.com/doananhhung/livechat-sub002/internal/repository"
	"github.com/doananhhung/livechat-sub002/internal/util"
)

// Publisher is the bus write side (Kafka in production).
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Emitter is the producer-facing surface of the pipeline. Domain
// services call EmitTx inside their own transaction so the event only
// exists if the domain write committed; PublishDirect bypasses the
// outbox for lower-criticality events that may be lost on broker error.
type Emitter struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	channel   string // pg NOTIFY channel for the relay wake-up
}

func NewEmitter(outbox repository.OutboxRepository, publisher Publisher, channel string) *Emitter {
	return &Emitter{outbox: outbox, publisher: publisher, channel: channel}
}

// EmitTx builds the bus envelope and appends it to the outbox within tx.
// If tx rolls back, no event is emitted. Returns the stored event.
func (e *Emitter) EmitTx(ctx context.Context, tx *sqlx.Tx, projectID, aggregateType, aggregateID, trigger string, data any) (model.OutboxEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("marshal event data: %w", err)
	}

	env := model.Event{
		ID:        util.NewULID(),
		ProjectID: projectID,
		Trigger:   trigger,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("marshal envelope: %w", err)
	}

	evt := model.OutboxEvent{
		ID:            env.ID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     trigger,
		Payload:       raw,
	}
	if err := e.outbox.Insert(ctx, tx, evt); err != nil {
		return model.OutboxEvent{}, fmt.Errorf("insert outbox: %w", err)
	}
	if err := e.outbox.Notify(ctx, tx, e.channel); err != nil {
		return model.OutboxEvent{}, fmt.Errorf("notify relay: %w", err)
	}
	return evt, nil
}

// PublishDirect writes the event straight onto the bus, skipping the
// outbox. No durability guarantee past the broker ack.
func (e *Emitter) PublishDirect(ctx context.Context, projectID, trigger string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	env := model.Event{
		ID:        util.NewULID(),
		ProjectID: projectID,
		Trigger:   trigger,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return e.publisher.Publish(ctx, projectID, raw)
}
