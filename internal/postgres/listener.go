package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/feed"
	"github.com/archers7727/rokey5/pkg/retry"
	"github.com/archers7727/rokey5/pkg/telemetry"
)

// NotifyChannel is the channel the insert trigger publishes on.
const NotifyChannel = "ros2_commands_changes"

// CommandReader resolves id-only notifications.
type CommandReader interface {
	GetByID(ctx context.Context, id string) (*domain.Command, error)
}

// Listener is a feed.Source backed by LISTEN/NOTIFY. It holds one pooled
// connection and reconnects with backoff when it drops.
type Listener struct {
	pool    *pgxpool.Pool
	reader  CommandReader
	logger  *slog.Logger
	backoff retry.Config
}

var _ feed.Source = (*Listener)(nil)

func NewListener(pool *pgxpool.Pool, reader CommandReader, logger *slog.Logger) *Listener {
	return &Listener{
		pool:   pool,
		reader: reader,
		logger: logger,
		backoff: retry.Config{
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  30 * time.Second,
		},
	}
}

// notice is the trigger payload. Oversized rows arrive with only command_id set.
type notice struct {
	domain.Envelope
	CommandID string `json:"command_id"`
}

// Subscribe blocks until ctx is cancelled. Notifications that arrive while the
// listener is reconnecting are lost; the dispatcher's replay sweep recovers them.
func (l *Listener) Subscribe(ctx context.Context, handler feed.HandlerFunc) error {
	err := retry.Do(ctx, l.withReconnectLog(), func() error {
		err := l.listen(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (l *Listener) withReconnectLog() retry.Config {
	cfg := l.backoff
	cfg.OnRetry = func(attempt int, err error) {
		telemetry.FeedReconnectsTotal.WithLabelValues("postgres").Inc()
		l.logger.Warn("change feed connection lost, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", cfg.Delay(attempt)),
			slog.String("error", err.Error()),
		)
	}
	return cfg
}

func (l *Listener) listen(ctx context.Context, handler feed.HandlerFunc) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	// A LISTENing connection must not go back to the pool still subscribed.
	defer func() {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	l.logger.Info("listening for command inserts", slog.String("channel", NotifyChannel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		env, err := l.decode(ctx, []byte(n.Payload))
		if err != nil {
			l.logger.WarnContext(ctx, "discarding undecodable notification",
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := handler(ctx, env); err != nil {
			// NOTIFY has no redelivery; the row stays pending for replay.
			l.logger.ErrorContext(ctx, "notification handler failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *Listener) decode(ctx context.Context, payload []byte) (domain.Envelope, error) {
	var n notice
	if err := json.Unmarshal(payload, &n); err != nil {
		return domain.Envelope{}, fmt.Errorf("decode notification: %w", err)
	}
	env := n.Envelope
	if env.Old != nil && env.Old.ID == "" {
		env.Old = nil
	}
	if env.Record != nil || n.CommandID == "" {
		return env, nil
	}

	cmd, err := l.reader.GetByID(ctx, n.CommandID)
	var notFound *domain.CommandNotFoundError
	if errors.As(err, &notFound) {
		return domain.Envelope{}, err
	}
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("resolve notification for %s: %w", n.CommandID, err)
	}
	env.Record = cmd
	return env, nil
}

// Close is a no-op; the listen connection is closed when Subscribe returns.
func (l *Listener) Close() error { return nil }
