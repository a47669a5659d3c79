package app

import (
	"sync"
)

// EventType represents the type of event
type EventType int

const (
	EventSessionOpened EventType = iota
	EventSessionClosed
	EventRequestProcessed
)

// EventMsg represents an event from the app layer
type EventMsg struct {
	Type EventType
	Data interface{}
}

// SessionEvent is the data of session events
type SessionEvent struct {
	ConnectionID string
	JID          string
}

// RequestEvent is the data of EventRequestProcessed
type RequestEvent struct {
	ConnectionID string
	Request      string
	Outcome      string
	Packets      int
}

// EventHandler is a function that handles events
type EventHandler func(event EventMsg)

// EventBus handles event subscription and publishing
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe subscribes to an event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish publishes an event to all subscribers. Handlers run in their own
// goroutines.
func (b *EventBus) Publish(event EventMsg) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// Unsubscribe removes all handlers for an event type
func (b *EventBus) Unsubscribe(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]EventHandler)
}
