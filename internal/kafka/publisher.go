package kafka

import (
	"context"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const eventVersion = 1

type sink interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error
}

// EventPublisher wraps order lifecycle events in an Envelope and queues them on the
// lifecycle topic, keyed by order id.
type EventPublisher struct {
	out      sink
	producer string
}

func NewEventPublisher(p *Producer, producer string) *EventPublisher {
	return &EventPublisher{out: p, producer: producer}
}

var _ orders.Publisher = (*EventPublisher)(nil)

func (p *EventPublisher) Publish(ctx context.Context, ev orders.Event) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  eventVersion,
		OccurredAt:    occurred.UTC(),
		Producer:      p.producer,
		CorrelationID: ev.Order.ID,
		Payload:       MustMarshal(orders.NewOrderEventPayload(ev)),
	}
	return p.out.Publish(ctx, orders.PartitionKey(ev.Order.ID), MustMarshal(env), EventHeaders(ev.Type, eventVersion)...)
}
