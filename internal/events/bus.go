package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(InstructionExecutedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event routes on the static type, so unwrap the interface first.
	switch e := ev.(type) {
	case ControllerStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case InstructionScheduledEvent:
		event.Publish(b.dispatcher, e)
	case InstructionExecutedEvent:
		event.Publish(b.dispatcher, e)
	case InstructionCancelledEvent:
		event.Publish(b.dispatcher, e)
	case InstructionFailedEvent:
		event.Publish(b.dispatcher, e)
	case IdlePacketEvent:
		event.Publish(b.dispatcher, e)
	case ControllerErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function
// The handler type determines which events it receives
// Returns an unsubscribe function
// Usage: unsub := bus.Subscribe(func(e ControllerStateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ControllerStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstructionScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstructionExecutedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstructionCancelledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(InstructionFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(IdlePacketEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ControllerErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Return a no-op function if handler type is not recognized
		return func() {}
	}
}

// SubscribeToChannel bridges a callback subscription to a channel. Events are
// dropped when ch is full so a slow reader never stalls the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
