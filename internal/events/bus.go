// Package events carries supervisor lifecycle notifications between the
// launcher, the signal watcher and the shutdown coordinator.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Handlers run asynchronously; each subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Close stops delivery to all subscribers
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}

// Publish publishes an event to all subscribers of its type
// Usage: events.Publish(bus, ShutdownRequested{...})
func Publish[T Event](b *Bus, ev T) {
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers a handler for events of type T.
// Returns an unsubscribe function.
// Usage: unsub := events.Subscribe(bus, func(e ProcessExited) { ... })
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

