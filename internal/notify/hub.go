package notify

import (
	"sync"
)

// Topic names an event channel on the hub
type Topic string

const (
	TopicOrderCreated Topic = "order-created"
	TopicNoteChanged  Topic = "note-changed"
)

// Handler receives an event payload. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(payload interface{})

type subscriber struct {
	id int
	fn Handler
}

// Hub is the in-process publish/subscribe registry. Delivery is best-effort,
// at most once per subscriber registered at the moment of publication; there
// is no buffering and no replay. The polling fallback on the client side is
// what makes this volatility acceptable. A single service instance is
// assumed; subscribers on other instances would never see events.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic][]subscriber
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[Topic][]subscriber)}
}

// Subscribe registers a handler for a topic and returns its unsubscribe
// function. Handlers are invoked in registration order.
func (h *Hub) Subscribe(topic Topic, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs[topic] = append(h.subs[topic], subscriber{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[topic]
		for i, s := range list {
			if s.id == id {
				h.subs[topic] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the payload to every current subscriber of the topic,
// synchronously and in registration order. The subscriber list is snapshotted
// under the lock, then handlers run outside it so a handler may subscribe or
// unsubscribe without deadlocking.
func (h *Hub) Publish(topic Topic, payload interface{}) {
	h.mu.Lock()
	snapshot := make([]subscriber, len(h.subs[topic]))
	copy(snapshot, h.subs[topic])
	h.mu.Unlock()

	for _, s := range snapshot {
		s.fn(payload)
	}
}

// SubscriberCount reports how many handlers are registered for a topic
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}
