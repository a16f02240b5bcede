package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventInsert is the only envelope kind the controller acts on.
const EventInsert = "INSERT"

// Envelope is one change notification delivered by the realtime feed.
// Its JSON form matches the postgres_changes payload: {"eventType", "new", "old"}.
type Envelope struct {
	EventKind string   `json:"eventType"`
	Record    *Command `json:"new,omitempty"`
	Old       *Command `json:"old,omitempty"`
}

// IsInsert reports whether the envelope announces a newly created row.
func (e Envelope) IsInsert() bool {
	return strings.EqualFold(e.EventKind, EventInsert)
}

// Validate checks the fields the dispatcher needs before it may write anything.
func (e Envelope) Validate() error {
	if e.EventKind == "" {
		return errors.New("envelope missing eventType")
	}
	if !e.IsInsert() {
		// Non-insert envelopes are ignored, not malformed.
		return nil
	}
	if e.Record == nil {
		return errors.New("insert envelope missing record")
	}
	if strings.TrimSpace(e.Record.ID) == "" {
		return errors.New("record missing command_id")
	}
	if !e.Record.Status.IsValid() {
		return fmt.Errorf("record %s has unknown status %q", e.Record.ID, e.Record.Status)
	}
	return nil
}

// DecodeEnvelope parses a raw change notification. Postgres sends an empty
// "old" object on insert, which decodes to a zero Command and is dropped here.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Old != nil && env.Old.ID == "" {
		env.Old = nil
	}
	return env, nil
}

// InsertEnvelope builds the envelope the feed would deliver for a freshly
// inserted record.
func InsertEnvelope(cmd *Command) Envelope {
	return Envelope{EventKind: EventInsert, Record: cmd}
}
