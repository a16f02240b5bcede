package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/archers7727/rokey5/internal/domain"
)

// Handler executes the physical workflow behind one command type.
// Handlers never write command status; the dispatcher owns the lifecycle.
type Handler interface {
	CommandType() domain.CommandType
	Execute(ctx context.Context, payload json.RawMessage, parkingSpot string) error
}

// Holder is implemented by handlers that deliberately wait as part of their
// workflow. The dispatcher extends the handler deadline by the reported hold.
type Holder interface {
	Hold(payload json.RawMessage) time.Duration
}

// Registry maps command types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.CommandType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.CommandType]Handler)}
}

// Register adds a handler, replacing any previous one for the same type.
// Safe to call concurrently.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.CommandType()] = h
}

// MustRegister adds a handler and panics if its type is already registered.
func (r *Registry) MustRegister(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := h.CommandType()
	if _, ok := r.handlers[t]; ok {
		panic(fmt.Sprintf("handlers: duplicate registration for command type %q", t))
	}
	r.handlers[t] = h
}

// Get returns the handler for the given command type.
// Returns *domain.UnknownCommandTypeError if not registered.
func (r *Registry) Get(t domain.CommandType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, &domain.UnknownCommandTypeError{CommandType: t}
	}
	return h, nil
}

// Types lists the registered command types in sorted order.
func (r *Registry) Types() []domain.CommandType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CommandType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
