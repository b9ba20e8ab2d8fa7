// Package event provides generic event emission utilities.
package event

import (
	"log/slog"
	"sync"
)

// Emitter provides thread-safe event emission with handler registration.
// It handles the common pattern of registering handlers and emitting events
// to all registered handlers safely.
type Emitter[E any] struct {
	mu sync.RWMutex
	// +checklocks:mu
	handlers map[int]func(E)
	// +checklocks:mu
	nextID int
}

// OnEvent registers an event handler.
// Handlers are called synchronously when events are emitted.
func (e *Emitter[E]) OnEvent(handler func(E)) {
	e.On(handler)
}

// On registers an event handler and returns a function that removes it.
func (e *Emitter[E]) On(handler func(E)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]func(E))
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = handler
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

// Emit sends an event to all registered handlers.
// Handlers are called with a snapshot of the handler set to allow
// safe iteration even if handlers are added or removed during emission.
// A panicking handler is logged and does not suppress delivery to the rest.
// Must not be called with lock held.
func (e *Emitter[E]) Emit(event E) {
	e.mu.RLock()
	handlers := make([]func(E), 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		invoke(h, event)
	}
}

func invoke[E any](h func(E), event E) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panic", "panic", r)
		}
	}()
	h(event)
}
