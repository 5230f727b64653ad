// Package bus provides the in-process notification bus used to decouple the
// credential and job-tracking engines from whatever surface observes them
// (CLI output, desktop shell, tests). Publishers never see subscribers;
// subscribers never share mutable state with publishers.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

// Well-known topics. Broadcast after any credential mutation or job update
// so independent consumers can re-evaluate their own state.
const (
	TopicPairingChanged = "pairing.changed"
	TopicAuthChanged    = "auth.changed"
	TopicJobsUpdated    = "jobs.updated"
	TopicConfigChanged  = "config.changed"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Topic   string
	Payload any
}

// Handler receives events for a subscribed topic.
// Handlers should be non-blocking; slow work belongs in the subscriber.
type Handler func(evt Event)

// Bus routes notifications from the sync engines to their observers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler // topic → subscriber ID → handler
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]map[string]Handler),
	}
}

// Subscribe registers a handler for a topic. Returns the subscriber ID
// for Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]Handler)
	}
	b.subs[topic][id] = handler
	return id
}

// Unsubscribe removes a subscriber from a topic. Unknown IDs are a no-op.
func (b *Bus) Unsubscribe(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[topic], id)
}

// Publish delivers an event to all subscribers of the topic, synchronously
// and in unspecified order.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload}
	for _, h := range handlers {
		h(evt)
	}
}
