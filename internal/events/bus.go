// Package events provides the in-process event bus for supervisor
// lifecycle notifications.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ChildExitedEvent{...})
func (b *Bus) Publish(ev Event) {
	// The generic Publish needs the concrete type, hence the type switch.
	switch e := ev.(type) {
	case PhaseChangedEvent:
		event.Publish(b.dispatcher, e)
	case ChildStartedEvent:
		event.Publish(b.dispatcher, e)
	case ChildExitedEvent:
		event.Publish(b.dispatcher, e)
	case RestartScheduledEvent:
		event.Publish(b.dispatcher, e)
	case BudgetExhaustedEvent:
		event.Publish(b.dispatcher, e)
	case ChildOutputEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type determines which events it receives. Returns an
// unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ChildExitedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PhaseChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ChildStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ChildExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RestartScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BudgetExhaustedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ChildOutputEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges kelindar/event callback subscriptions to
// channels, for SSE handlers that need a channel-based select loop.
// Events are dropped when the channel is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
