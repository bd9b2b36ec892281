package events

import (
	"sync"
)

// TopicResourceChanged is published whenever a shared resource (a note) is
// created, updated, or deleted. Subscribers re-run their own load routine;
// delivery does not imply any store is already consistent.
const TopicResourceChanged = "resource-changed"

// ResourceChanged is the payload for TopicResourceChanged. ResourceID is
// empty for bulk changes where subscribers should reload everything.
type ResourceChanged struct {
	ResourceID string
}

// Handler receives a published payload. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(payload any)

type subscription struct {
	id      uint64
	topic   string
	handler Handler
}

// Bus is an in-process publish/subscribe channel. Events are transient:
// nothing is queued or persisted, and a subscriber registered after a
// publish never observes it.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe registers handler for topic and returns its unsubscribe
// function. Handlers are invoked in registration order. The returned
// function is idempotent and safe to call during dispatch.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, topic: topic, handler: handler}
	b.subs[topic] = append(b.subs[topic], sub)

	return func() {
		b.unsubscribe(sub)
	}
}

// Publish delivers payload synchronously, at most once, to the handlers
// registered for topic at the moment of the call. Handlers that subscribe
// or unsubscribe during dispatch do not alter the current delivery set.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	snapshot := make([]*subscription, len(b.subs[topic]))
	copy(snapshot, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range snapshot {
		sub.handler(payload)
	}
}

func (b *Bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
