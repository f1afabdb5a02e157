// Package pubsub provides the publish/subscribe primitives used to move
// process output and document change signals between components.
//
// Two flavours exist: Bus delivers synchronously to handlers in registration
// order, and Broker fans events out asynchronously over buffered channels.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// ChangedEvent signals that a document's content grew.
	ChangedEvent EventType = "changed"
	// ExitedEvent signals that the process behind a document exited.
	ExitedEvent EventType = "exited"
	// DetachedEvent signals that a document's process was detached.
	DetachedEvent EventType = "detached"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
