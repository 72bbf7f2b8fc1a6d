// Package eventbus carries lead and workflow events between the leadflow services.
package eventbus

import (
	"context"

	"github.com/dukex/leadflow/pkg/events"
)

// Event is anything that can travel on the bus. Every event shares events.Topic;
// the event type selects the handler.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events. key is the partition key, usually the
// subject or workflow id, so events of one lead stay ordered on Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to handlers. Handle must be called
// for every topic before Subscribe starts consuming.
type EventSubscriber interface {
	Handle(ctx context.Context, eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event. Returning an error nacks the message.
type EventHandler func(ctx context.Context, event any) error

// EventBus is a publisher and subscriber over one transport.
type EventBus interface {
	EventPublisher
	EventSubscriber

	// Close stops consuming and releases the transport.
	Close(ctx context.Context) error
	// GenerateID returns a new unique message id.
	GenerateID(ctx context.Context) string
}
