package lamp

import (
	"log/slog"
	"slices"
	"sync"
)

// Event types
const (
	EventStateChanged  = "state_changed"
	EventCommandSent   = "command_sent"
	EventCommandFailed = "command_failed"
)

// Event represents a lamp event. Lamp is the entry ID that produced it.
type Event struct {
	Type string      `json:"type"`
	Lamp string      `json:"lamp"`
	Data interface{} `json:"data,omitempty"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type subscription struct {
	id        uint64
	eventType string // empty matches every type
	handler   EventHandler
}

// EventBus provides pub/sub for lamp events. One bus may be shared by
// several managers; handlers run in registration order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	return eb.add(eventType, handler)
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.add("", handler)
}

func (eb *EventBus) add(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.subs = append(eb.subs, subscription{id: id, eventType: eventType, handler: handler})
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		eb.subs = slices.DeleteFunc(eb.subs, func(s subscription) bool { return s.id == id })
	}
}

// Emit sends an event to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered
// and the remaining handlers still run.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.eventType == "" || s.eventType == event.Type {
			handlers = append(handlers, s.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "lamp", event.Lamp, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
