package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archers7727/rokey5/internal/domain"
)

// DefaultTTL bounds how long a mirrored status outlives its last write.
const DefaultTTL = 24 * time.Hour

func statusKey(commandID string) string { return "command:status:" + commandID }
func metaKey(commandID string) string   { return "command:meta:" + commandID }

// StatusMirror keeps a TTL'd copy of command status for fast reads by the ops
// endpoints. Postgres stays the source of truth.
type StatusMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusMirror creates a Redis-backed StatusMirror. ttl <= 0 uses DefaultTTL.
func NewStatusMirror(client *redis.Client, ttl time.Duration) *StatusMirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatusMirror{client: client, ttl: ttl}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (m *StatusMirror) SetStatus(ctx context.Context, commandID string, status domain.Status) error {
	err := m.client.Set(ctx, statusKey(commandID), string(status), m.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set status for %s: %w", commandID, err)
	}
	return nil
}

func (m *StatusMirror) GetStatus(ctx context.Context, commandID string) (domain.Status, error) {
	val, err := m.client.Get(ctx, statusKey(commandID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.CommandNotFoundError{CommandID: commandID}
		}
		return "", fmt.Errorf("redis get status for %s: %w", commandID, err)
	}
	return domain.Status(val), nil
}

// SetCommand stores the full record alongside its status in one round trip.
func (m *StatusMirror) SetCommand(ctx context.Context, cmd *domain.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command meta: %w", err)
	}
	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, metaKey(cmd.ID), data, m.ttl)
		pipe.Set(ctx, statusKey(cmd.ID), string(cmd.Status), m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set meta for %s: %w", cmd.ID, err)
	}
	return nil
}

// GetCommand returns the mirrored record with the latest mirrored status applied.
func (m *StatusMirror) GetCommand(ctx context.Context, commandID string) (*domain.Command, error) {
	data, err := m.client.Get(ctx, metaKey(commandID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.CommandNotFoundError{CommandID: commandID}
		}
		return nil, fmt.Errorf("redis get meta for %s: %w", commandID, err)
	}
	var cmd domain.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("unmarshal command meta: %w", err)
	}
	if status, err := m.GetStatus(ctx, commandID); err == nil {
		cmd.Status = status
	}
	return &cmd, nil
}
