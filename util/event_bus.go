// util/event_bus.go

package util

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
)

// Event types published inside the service.
const (
	// EventCredentialsUpdated carries the new *model.ExtendedCredentials
	// (possibly nil).
	EventCredentialsUpdated = "credentials.updated"
	// EventPermissionsInvalidated carries the user ID whose cached
	// permissions were dropped, or "" for all users.
	EventPermissionsInvalidated = "permissions.invalidated"
	// EventSchemaRefreshed carries the schema version string.
	EventSchemaRefreshed = "schema.refreshed"
)

// Event represents an event in the system
type Event struct {
	Type    string
	Payload interface{}
}

// EventHandler is a function that handles an event
type EventHandler func(context.Context, Event) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus manages event subscriptions and publications
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	mu          sync.RWMutex
	errorChan   chan error
	wg          sync.WaitGroup
}

// NewEventBus creates a new EventBus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
		errorChan:   make(chan error, 100),
	}
}

// Subscribe adds a new subscriber for a specific event type. The returned
// function removes it again.
func (eb *EventBus) Subscribe(eventType string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, handler: handler})

	return func() { eb.unsubscribe(eventType, id) }
}

func (eb *EventBus) handlers(eventType string) []EventHandler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subs := eb.subscribers[eventType]
	out := make([]EventHandler, len(subs))
	for i, s := range subs {
		out[i] = s.handler
	}
	return out
}

// Publish sends an event to all subscribers, each on its own goroutine.
// Handler errors are reported on the error channel drained by Start.
func (eb *EventBus) Publish(ctx context.Context, eventType string, payload interface{}) {
	event := Event{Type: eventType, Payload: payload}

	for _, handler := range eb.handlers(eventType) {
		eb.wg.Add(1)
		go func(h EventHandler) {
			defer eb.wg.Done()
			if err := h(ctx, event); err != nil {
				eb.report(eventType, err)
			}
		}(handler)
	}
}

// PublishSync runs every handler on the caller's goroutine and returns the
// first error after all handlers ran.
func (eb *EventBus) PublishSync(ctx context.Context, eventType string, payload interface{}) error {
	event := Event{Type: eventType, Payload: payload}

	var first error
	for _, h := range eb.handlers(eventType) {
		if err := h(ctx, event); err != nil {
			eb.report(eventType, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (eb *EventBus) report(eventType string, err error) {
	select {
	case eb.errorChan <- fmt.Errorf("event handler error (%s): %w", eventType, err):
	default:
		logger.Error("Error channel full, logging event handler error",
			zap.Error(err),
			zap.String("eventType", eventType))
	}
}

// Start begins processing events and handling errors
func (eb *EventBus) Start(ctx context.Context) {
	go eb.processErrors(ctx)
}

// Wait blocks until asynchronously published handlers have returned.
func (eb *EventBus) Wait() {
	eb.wg.Wait()
}

// processErrors handles errors from event handlers
func (eb *EventBus) processErrors(ctx context.Context) {
	for {
		select {
		case err := <-eb.errorChan:
			logger.Error("Event handler error", zap.Error(err))
		case <-ctx.Done():
			return
		}
	}
}

func (eb *EventBus) unsubscribe(eventType string, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			eb.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}
