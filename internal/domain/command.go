package domain

import (
	"encoding/json"
	"time"
)

// Status represents the states a command can be in.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is one of the known lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Previous returns the only state a command may be in right before entering s.
// The second result is false for pending, which has no predecessor.
func (s Status) Previous() (Status, bool) {
	switch s {
	case StatusProcessing:
		return StatusPending, true
	case StatusCompleted, StatusFailed:
		return StatusProcessing, true
	}
	return "", false
}

// CanTransitionTo reports whether s → next is a legal lifecycle step.
// The only legal path is pending → processing → {completed | failed}.
func (s Status) CanTransitionTo(next Status) bool {
	prev, ok := next.Previous()
	return ok && prev == s
}

// CommandType tags the workflow a command asks for.
type CommandType string

const (
	CommandExitGateSingle CommandType = "EXIT_GATE_SINGLE"
	CommandExitGateDouble CommandType = "EXIT_GATE_DOUBLE"
	// CommandExitGateOpen is the older single-vehicle gate type still emitted by
	// the web exit flow.
	CommandExitGateOpen   CommandType = "EXIT_GATE_OPEN"
	CommandParkingGuide   CommandType = "PARKING_GUIDE"
)

// Command is one row of the ros2_commands table.
type Command struct {
	ID            string          `json:"command_id"`
	Type          CommandType     `json:"command_type"`
	Status        Status          `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	LicensePlate  string          `json:"license_plate,omitempty"`
	ParkingSpotID string          `json:"parking_spot_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}
