package domain

import "fmt"

// CommandNotFoundError is returned when a command ID does not exist.
type CommandNotFoundError struct {
	CommandID string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s", e.CommandID)
}

// UnknownCommandTypeError is returned when no handler is registered for a command type.
type UnknownCommandTypeError struct {
	CommandType CommandType
}

func (e *UnknownCommandTypeError) Error() string {
	return fmt.Sprintf("unknown command type %q", string(e.CommandType))
}

// StatusConflictError is returned by a conditional status write when the stored
// row is no longer in the state the write expected.
type StatusConflictError struct {
	CommandID string
	Expected  Status
	Current   Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("command %s is %s, expected %s", e.CommandID, e.Current, e.Expected)
}

// InvalidTransitionError is returned when a write would move a command along an
// illegal lifecycle edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// InvalidPayloadError is returned by handlers that cannot interpret a payload.
type InvalidPayloadError struct {
	CommandType CommandType
	Reason      string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.CommandType, e.Reason)
}
