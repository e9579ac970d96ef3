// internal/bus/bus.go
// Package bus is the event spine between adapters and everything that
// watches them. Delivery is synchronous and ordered; a bounded ring of
// recent events is kept for diagnostics only, never for replay-based
// recovery.
package bus

import (
	"sync"
	"time"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// DefaultHistoryCap bounds the diagnostic ring buffer.
const DefaultHistoryCap = 200

// Handler consumes one event. Handlers run synchronously on the
// emitter's goroutine, in subscription order.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is a typed publish/subscribe hub. Events reach exact-type
// subscribers first, wildcard subscribers after. There is no
// redelivery: an event emitted before a subscription exists is gone.
// Safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[string][]subscription
	history  []Event
	capacity int
}

// New builds a bus with the default history capacity.
func New() *Bus {
	return NewWithCapacity(DefaultHistoryCap)
}

// NewWithCapacity builds a bus keeping at most capacity events of
// history.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &Bus{
		handlers: make(map[string][]subscription),
		capacity: capacity,
	}
}

// Subscribe registers a handler for one event type, or for every type
// via Wildcard. The returned function removes the subscription and is
// safe to call more than once.
func (b *Bus) Subscribe(eventType string, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit records the event and delivers it synchronously. The handler
// snapshot is taken under the lock and invoked outside it, so handlers
// may emit, subscribe or unsubscribe without deadlocking.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}
	snapshot := make([]subscription, 0, len(b.handlers[ev.Type])+len(b.handlers[Wildcard]))
	snapshot = append(snapshot, b.handlers[ev.Type]...)
	if ev.Type != Wildcard {
		snapshot = append(snapshot, b.handlers[Wildcard]...)
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(ev)
	}
}

// History returns up to limit of the most recent events, oldest first.
// limit <= 0 returns everything retained.
func (b *Bus) History(limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// Clear drops the retained history. Subscriptions stay in place.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
