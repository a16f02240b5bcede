package handlers

import (
	"log/slog"
	"time"

	"github.com/archers7727/rokey5/internal/actuation"
	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/pkg/clock"
)

// Options configures the built-in handler set.
type Options struct {
	Publisher   actuation.Publisher
	Clock       clock.Clock
	GateLock    bool
	GuideSettle time.Duration
	Logger      *slog.Logger
}

// NewDefaultRegistry registers the exit gate and parking guide handlers.
// All gate handlers share one set of gate locks when opts.GateLock is set.
func NewDefaultRegistry(opts Options) *Registry {
	var locks *GateLocks
	if opts.GateLock {
		locks = NewGateLocks()
	}
	gate := GateOptions{Publisher: opts.Publisher, Clock: opts.Clock, Locks: locks, Logger: opts.Logger}

	reg := NewRegistry()
	reg.MustRegister(NewGateHandler(domain.CommandExitGateSingle, 1, gate))
	reg.MustRegister(NewGateHandler(domain.CommandExitGateDouble, 2, gate))
	reg.MustRegister(NewGateHandler(domain.CommandExitGateOpen, 1, gate))
	reg.MustRegister(NewGuideHandler(opts.Publisher, opts.Clock, opts.GuideSettle, opts.Logger))
	return reg
}
