package pubsub

import (
	"fmt"
	"sync"

	"github.com/zjrosen/procview/internal/log"
)

// Handler receives one event from a Bus. A returned error (or a panic) is
// logged by the bus and never reaches the publisher.
type Handler[T any] func(event T) error

// Bus is a synchronous, unbuffered publish/subscribe channel.
// Publish invokes every subscribed handler in registration order and returns
// only after all of them ran.
type Bus[T any] struct {
	name string

	mu     sync.RWMutex
	subs   []*Subscription[T]
	nextID uint64
}

// Subscription is a handle returned by Bus.Subscribe.
type Subscription[T any] struct {
	id      uint64
	bus     *Bus[T]
	handler Handler[T]
}

// NewBus creates a bus. name appears in failure logs.
func NewBus[T any](name string) *Bus[T] {
	return &Bus[T]{name: name}
}

// Subscribe registers handler and returns its subscription.
func (b *Bus[T]) Subscribe(handler Handler[T]) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription[T]{id: b.nextID, bus: b, handler: handler}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == s.id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every current subscriber. It never fails.
// Handlers subscribed or unsubscribed during delivery take effect on the next Publish.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	subs := make([]*Subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.deliver(sub, event); err != nil {
			log.ErrorErr(log.CatBus, "subscriber failed", err, "bus", b.name, "subscription", sub.id)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus[T]) deliver(sub *Subscription[T], event T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	if sub.handler == nil {
		return nil
	}
	return sub.handler(event)
}
