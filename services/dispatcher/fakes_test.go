package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archers7727/rokey5/internal/actuation"
	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/feed"
)

// ── store ────────────────────────────────────────────────────────────────────

type statusWrite struct {
	id     string
	status domain.Status
	msg    string
}

// memStore is a conditional in-memory StatusStore. Every call is recorded in
// attempts; only accepted writes land in writes.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]domain.Status
	messages map[string]string
	attempts []statusWrite
	writes   []statusWrite
	failOn   map[domain.Status]error
}

func newMemStore(rows map[string]domain.Status) *memStore {
	if rows == nil {
		rows = make(map[string]domain.Status)
	}
	return &memStore{
		rows:     rows,
		messages: make(map[string]string),
		failOn:   make(map[domain.Status]error),
	}
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status domain.Status, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := statusWrite{id: id, status: status, msg: msg}
	s.attempts = append(s.attempts, w)

	if err := s.failOn[status]; err != nil {
		return err
	}
	current, ok := s.rows[id]
	if !ok {
		return &domain.CommandNotFoundError{CommandID: id}
	}
	prev, _ := status.Previous()
	if current != prev {
		return &domain.StatusConflictError{CommandID: id, Expected: prev, Current: current}
	}
	s.rows[id] = status
	if status == domain.StatusFailed {
		s.messages[id] = msg
	}
	s.writes = append(s.writes, w)
	return nil
}

func (s *memStore) fail(status domain.Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[status] = err
}

func (s *memStore) status(id string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

func (s *memStore) message(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *memStore) Attempts() []statusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusWrite(nil), s.attempts...)
}

func (s *memStore) Writes() []statusWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusWrite(nil), s.writes...)
}

// ── lister ───────────────────────────────────────────────────────────────────

type fakeLister struct {
	mu       sync.Mutex
	byStatus map[domain.Status][]*domain.Command
	before   map[domain.Status]time.Time
	err      error
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		byStatus: make(map[domain.Status][]*domain.Command),
		before:   make(map[domain.Status]time.Time),
	}
}

func (l *fakeLister) ListByStatus(_ context.Context, status domain.Status, before time.Time, limit int) ([]*domain.Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.before[status] = before
	if l.err != nil {
		return nil, l.err
	}
	cmds := l.byStatus[status]
	if len(cmds) > limit {
		cmds = cmds[:limit]
	}
	out := make([]*domain.Command, 0, len(cmds))
	for _, c := range cmds {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// ── mirror ───────────────────────────────────────────────────────────────────

type recordingMirror struct {
	mu       sync.Mutex
	statuses map[string][]domain.Status
	commands map[string]domain.Command
	err      error
}

func newRecordingMirror() *recordingMirror {
	return &recordingMirror{
		statuses: make(map[string][]domain.Status),
		commands: make(map[string]domain.Command),
	}
}

func (m *recordingMirror) SetCommand(_ context.Context, cmd *domain.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[cmd.ID] = *cmd
	m.statuses[cmd.ID] = append(m.statuses[cmd.ID], cmd.Status)
	return m.err
}

func (m *recordingMirror) GetCommand(_ context.Context, id string) (*domain.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cmd, ok := m.commands[id]
	if !ok {
		return nil, &domain.CommandNotFoundError{CommandID: id}
	}
	return &cmd, nil
}

func (m *recordingMirror) history(id string) []domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Status(nil), m.statuses[id]...)
}

// ── handlers ─────────────────────────────────────────────────────────────────

// funcHandler adapts a function to handlers.Handler.
type funcHandler struct {
	typ   domain.CommandType
	calls atomic.Int32
	fn    func(ctx context.Context, payload []byte, spot string) error
}

func (h *funcHandler) CommandType() domain.CommandType { return h.typ }

func (h *funcHandler) Execute(ctx context.Context, payload json.RawMessage, spot string) error {
	h.calls.Add(1)
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, payload, spot)
}

// blockingHandler signals started and then waits for a result on release or
// for ctx to end.
type blockingHandler struct {
	typ     domain.CommandType
	calls   atomic.Int32
	started chan string
	release chan error
}

func newBlockingHandler(t domain.CommandType) *blockingHandler {
	return &blockingHandler{typ: t, started: make(chan string, 16), release: make(chan error)}
}

func (h *blockingHandler) CommandType() domain.CommandType { return h.typ }

func (h *blockingHandler) Execute(ctx context.Context, _ json.RawMessage, spot string) error {
	h.calls.Add(1)
	h.started <- spot
	select {
	case err := <-h.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// holdingHandler is a blockingHandler that reports a fixed hold time.
type holdingHandler struct {
	*blockingHandler
	hold time.Duration
}

func (h *holdingHandler) Hold(json.RawMessage) time.Duration { return h.hold }

// ── actuation ────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	exits  []actuation.ExitRequest
	guides []actuation.GuideRequest
}

func (p *recordingPublisher) PublishExit(_ context.Context, req actuation.ExitRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exits = append(p.exits, req)
	return nil
}

func (p *recordingPublisher) PublishGuide(_ context.Context, req actuation.GuideRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guides = append(p.guides, req)
	return nil
}

func (p *recordingPublisher) Exits() []actuation.ExitRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]actuation.ExitRequest(nil), p.exits...)
}

func (p *recordingPublisher) Guides() []actuation.GuideRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]actuation.GuideRequest(nil), p.guides...)
}

// ── feed ─────────────────────────────────────────────────────────────────────

// sliceSource delivers a fixed list of envelopes and returns.
type sliceSource struct {
	envs   []domain.Envelope
	errs   []error
	closed atomic.Bool
}

func (s *sliceSource) Subscribe(ctx context.Context, h feed.HandlerFunc) error {
	for _, env := range s.envs {
		s.errs = append(s.errs, h(ctx, env))
	}
	return nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func pendingCommand(id string, t domain.CommandType, payload string) *domain.Command {
	cmd := &domain.Command{
		ID:        id,
		Type:      t,
		Status:    domain.StatusPending,
		CreatedAt: epoch,
	}
	if payload != "" {
		cmd.Payload = json.RawMessage(payload)
	}
	return cmd
}

func insertOf(id string, t domain.CommandType, payload string) domain.Envelope {
	return domain.InsertEnvelope(pendingCommand(id, t, payload))
}
