// Package bus is the in-process notification bus. It carries the three
// semantic events the session and consent cores react to, dispatched
// synchronously in subscription order.
package bus

import "sync"

// Event is one of AuthChanged, LoggedOut or ConsentChanged.
type Event interface {
	event()
}

// AuthChanged fires after a verified identity response updated the session mirror.
type AuthChanged struct{}

// LoggedOut fires when the session ended, locally or after an unrecoverable
// refresh failure.
type LoggedOut struct{}

// ConsentChanged fires after an explicit consent decision.
type ConsentChanged struct {
	Accepted bool
}

func (AuthChanged) event()    {}
func (LoggedOut) event()      {}
func (ConsentChanged) event() {}

type subscription struct {
	id int
	fn func(Event)
}

// Bus broadcasts events to subscribers, first registered first invoked.
// Delivery is synchronous; handlers must not block.
type Bus struct {
	mu   sync.Mutex
	subs []subscription
	next int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers evt to every subscriber in registration order.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(evt)
	}
}
