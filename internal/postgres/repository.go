package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archers7727/rokey5/internal/domain"
)

// CommandRepository is the durable home of ros2_commands rows.
type CommandRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool.
func NewRepository(pool *pgxpool.Pool) *CommandRepository {
	return &CommandRepository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const commandColumns = `command_id::text, command_type, status, payload, license_plate, parking_spot_id,
		       session_id, created_at, executed_at, completed_at, error_message`

// Create inserts a new command. The store assigns command_id and created_at,
// which are written back into cmd. An empty status defaults to pending.
func (r *CommandRepository) Create(ctx context.Context, cmd *domain.Command) error {
	if cmd.Status == "" {
		cmd.Status = domain.StatusPending
	}
	payload := cmd.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ros2_commands
			(command_type, status, payload, license_plate, parking_spot_id, session_id)
		VALUES
			($1, $2, $3, $4, $5, $6)
		RETURNING command_id::text, created_at
	`,
		string(cmd.Type), string(cmd.Status), []byte(payload),
		nullable(cmd.LicensePlate), nullable(cmd.ParkingSpotID), nullable(cmd.SessionID),
	).Scan(&cmd.ID, &cmd.CreatedAt)
	if err != nil {
		return fmt.Errorf("create %s command: %w", cmd.Type, err)
	}
	cmd.Payload = payload
	return nil
}

// UpdateStatus moves a command one step along its lifecycle. The write is
// conditional on the row still being in the predecessor state, so concurrent
// or replayed writers cannot regress a status or set a timestamp twice.
//
// Returns *domain.CommandNotFoundError when the row does not exist and
// *domain.StatusConflictError when it is in any other state.
func (r *CommandRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, errMsg string) error {
	prev, ok := status.Previous()
	if !ok {
		return &domain.InvalidTransitionError{From: "", To: status}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &domain.CommandNotFoundError{CommandID: id}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE ros2_commands
		SET status        = $2::text,
		    executed_at   = CASE WHEN $2::text = 'processing' THEN COALESCE(executed_at, now()) ELSE executed_at END,
		    completed_at  = CASE WHEN $2::text IN ('completed', 'failed') THEN COALESCE(completed_at, now()) ELSE completed_at END,
		    error_message = CASE WHEN $2::text = 'failed' THEN NULLIF($4::text, '') ELSE error_message END
		WHERE command_id = $1 AND status = $3::text
	`, id, string(status), string(prev), errMsg)
	if err != nil {
		return fmt.Errorf("update status for command %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return &domain.StatusConflictError{CommandID: id, Expected: prev, Current: current.Status}
}

func (r *CommandRepository) GetByID(ctx context.Context, id string) (*domain.Command, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.CommandNotFoundError{CommandID: id}
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+commandColumns+`
		FROM ros2_commands
		WHERE command_id = $1
	`, id)

	cmd, err := scanCommand(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.CommandNotFoundError{CommandID: id}
	}
	return cmd, err
}

// ListByStatus returns up to limit commands in status, oldest first. For
// processing rows before bounds executed_at; for every other status it bounds
// created_at.
func (r *CommandRepository) ListByStatus(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.Command, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("list commands: unknown status %q", status)
	}
	column := "created_at"
	if status == domain.StatusProcessing {
		column = "executed_at"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+commandColumns+`
		FROM ros2_commands
		WHERE status = $1 AND `+column+` < $2
		ORDER BY created_at ASC
		LIMIT $3
	`, string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands by status %s: %w", status, err)
	}
	defer rows.Close()

	var cmds []*domain.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

// scanCommand reads a command row from any pgx row type.
func scanCommand(row interface {
	Scan(...any) error
}) (*domain.Command, error) {
	var (
		cmd                              domain.Command
		typ, status                      string
		payload                          []byte
		plate, spot, session, errMessage *string
	)
	err := row.Scan(
		&cmd.ID, &typ, &status, &payload, &plate, &spot,
		&session, &cmd.CreatedAt, &cmd.ExecutedAt, &cmd.CompletedAt, &errMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan command: %w", err)
	}
	cmd.Type = domain.CommandType(typ)
	cmd.Status = domain.Status(status)
	cmd.Payload = json.RawMessage(payload)
	cmd.LicensePlate = deref(plate)
	cmd.ParkingSpotID = deref(spot)
	cmd.SessionID = deref(session)
	cmd.ErrorMessage = deref(errMessage)
	return &cmd, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
