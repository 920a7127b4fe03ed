package events

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
)

type subscription struct {
	handler EventHandler
	types   []Type // empty means every type
}

func (s subscription) wants(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// InMemoryEventEmitter delivers events to in-process handlers on the
// emitting goroutine, in registration order.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewInMemoryEventEmitter returns an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With(slog.String("component", "event_emitter")),
	}
}

// RegisterHandler subscribes handler to the given event types, or to all
// events when none are given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...Type) {
	e.mu.Lock()
	e.subs = append(e.subs, subscription{handler: handler, types: types})
	n := len(e.subs)
	e.mu.Unlock()
	e.logger.Debug("event handler registered", slog.Int("handlers", n), slog.Any("types", types))
}

// EmitEvent runs every matching handler even when an earlier one fails and
// returns the first failure.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *Event) error {
	e.mu.RLock()
	subs := slices.Clone(e.subs)
	e.mu.RUnlock()

	var first error
	for i, s := range subs {
		if !s.wants(event.Type) {
			continue
		}
		err := s.handler.HandleEvent(ctx, event)
		if err == nil {
			continue
		}
		e.logger.Error("event handler failed",
			slog.String("error", err.Error()),
			slog.Int("handler_index", i),
			slog.String("event_type", string(event.Type)),
			slog.String("project_id", event.ProjectID.String()))
		if first == nil {
			first = err
		}
	}
	return first
}

// MultiEmitter fans an event out to the local emitter and any external
// publishers. Nil entries are skipped; failures are joined.
type MultiEmitter []EventEmitter

// EmitEvent sends event to every emitter, even after a failure.
func (m MultiEmitter) EmitEvent(ctx context.Context, event *Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.EmitEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
