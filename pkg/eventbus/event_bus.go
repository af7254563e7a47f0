// Package eventbus provides the pub/sub boundary used to deliver pipeline
// lifecycle events and terminal outcomes.
package eventbus

import (
	"context"

	"github.com/recforge/recforge/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

// EventBus publishes events to named topics and dispatches subscribed
// topics to registered handlers. Publishes from unrelated executions may
// happen concurrently; implementations must tolerate that.
type EventBus interface {
	Publish(ctx context.Context, topic string, key string, event Event) error
	Subscribe(ctx context.Context, topic string) error
	Handle(eventType events.EventType, handler EventHandler)
	GenerateID() string
	Close() error
}
