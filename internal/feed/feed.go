// Package feed delivers change notifications for the ros2_commands table.
package feed

import (
	"context"

	"github.com/archers7727/rokey5/internal/domain"
)

// HandlerFunc receives one decoded envelope. A non-nil error asks the source
// to redeliver when its transport supports it.
type HandlerFunc func(ctx context.Context, env domain.Envelope) error

// Source pushes envelopes to a handler until ctx is cancelled.
type Source interface {
	Subscribe(ctx context.Context, handler HandlerFunc) error
	Close() error
}
