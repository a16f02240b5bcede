package handlers

import (
	"context"
	"sync"
)

// GateLocks serializes work per gate id. The zero value is not usable; call NewGateLocks.
type GateLocks struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func NewGateLocks() *GateLocks {
	return &GateLocks{gates: make(map[string]chan struct{})}
}

func (l *GateLocks) slot(gate string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.gates[gate]
	if !ok {
		ch = make(chan struct{}, 1)
		l.gates[gate] = ch
	}
	return ch
}

// Lock blocks until the gate is free or ctx is done. On success the returned
// func releases the gate and must be called exactly once.
func (l *GateLocks) Lock(ctx context.Context, gate string) (func(), error) {
	ch := l.slot(gate)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
