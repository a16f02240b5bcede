package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/feed"
	"github.com/archers7727/rokey5/internal/handlers"
	"github.com/archers7727/rokey5/pkg/clock"
	"github.com/archers7727/rokey5/pkg/telemetry"
)

const (
	defaultHandlerTimeout = 2 * time.Minute
	defaultMaxConcurrency = 16
	finalizeTimeout       = 10 * time.Second
)

// ErrClosed is returned for envelopes that arrive after Shutdown has begun.
var ErrClosed = errors.New("dispatcher is shutting down")

// StatusStore is the durable status write. Implementations should make the
// write conditional on the predecessor state and report a lost race as
// *domain.StatusConflictError.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status, errMsg string) error
}

// CommandLister feeds the maintenance sweeps.
type CommandLister interface {
	ListByStatus(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.Command, error)
}

// StatusMirror receives a best-effort copy of the record after every accepted
// status write.
type StatusMirror interface {
	SetCommand(ctx context.Context, cmd *domain.Command) error
}

// Dispatcher owns the command lifecycle: it claims pending commands, routes
// them to handlers, supervises execution, and writes the terminal status.
// It is the only writer of command status.
type Dispatcher struct {
	store    StatusStore
	registry *handlers.Registry
	lister   CommandLister // nil disables Replay and ReapStale
	mirror   StatusMirror  // nil disables mirroring
	clock    clock.Clock
	logger   *slog.Logger

	handlerTimeout time.Duration
	maxConcurrency int64
	sem            *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	closing  bool
	wg       sync.WaitGroup // one count per in-flight id

	execCtx    context.Context
	execCancel context.CancelFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithHandlerTimeout(d time.Duration) Option { return func(x *Dispatcher) { x.handlerTimeout = d } }
func WithMaxConcurrency(n int) Option           { return func(x *Dispatcher) { x.maxConcurrency = int64(n) } }
func WithLister(l CommandLister) Option         { return func(x *Dispatcher) { x.lister = l } }
func WithMirror(m StatusMirror) Option          { return func(x *Dispatcher) { x.mirror = m } }
func WithClock(c clock.Clock) Option            { return func(x *Dispatcher) { x.clock = c } }
func WithLogger(l *slog.Logger) Option          { return func(x *Dispatcher) { x.logger = l } }

// NewDispatcher constructs a Dispatcher with the given dependencies and options.
func NewDispatcher(store StatusStore, registry *handlers.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:          store,
		registry:       registry,
		clock:          clock.Real(),
		logger:         slog.Default(),
		handlerTimeout: defaultHandlerTimeout,
		maxConcurrency: defaultMaxConcurrency,
		inFlight:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxConcurrency <= 0 {
		d.maxConcurrency = defaultMaxConcurrency
	}
	d.sem = semaphore.NewWeighted(d.maxConcurrency)
	d.execCtx, d.execCancel = context.WithCancel(context.Background())
	return d
}

// OnEvent handles one delivered envelope from start to finish: filter, claim,
// route, supervise and finalize. It returns only after the command is
// finalized. A non-nil error means the claim write failed and the command is
// still pending; the caller's transport should redeliver.
func (d *Dispatcher) OnEvent(ctx context.Context, env domain.Envelope) error {
	cmd, err := d.claim(ctx, env)
	if err != nil || cmd == nil {
		return err
	}
	d.execute(ctx, cmd)
	return nil
}

// Submit claims synchronously and executes in the background, bounded by the
// concurrency limit. It blocks while all execution slots are busy.
func (d *Dispatcher) Submit(ctx context.Context, env domain.Envelope) error {
	_, err := d.submit(ctx, env)
	return err
}

func (d *Dispatcher) submit(ctx context.Context, env domain.Envelope) (bool, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for execution slot: %w", err)
	}
	cmd, err := d.claim(ctx, env)
	if err != nil || cmd == nil {
		d.sem.Release(1)
		return false, err
	}
	go func() {
		defer d.sem.Release(1)
		d.execute(ctx, cmd)
	}()
	return true, nil
}

// Run feeds every envelope from src through Submit until ctx is cancelled.
// Running executions are not interrupted by ctx; call Shutdown afterwards.
func (d *Dispatcher) Run(ctx context.Context, src feed.Source) error {
	return src.Subscribe(ctx, d.Submit)
}

// Shutdown stops accepting envelopes and waits for running executions. If ctx
// expires first, running handlers are cancelled and their commands are
// finalized as failed before Shutdown returns ctx.Err().
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.execCancel()
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown grace expired, interrupting running handlers",
			slog.Int("in_flight", len(d.InFlight())),
		)
		d.execCancel()
		<-done
		return ctx.Err()
	}
}

// InFlight lists the ids currently claimed and not yet finalized.
func (d *Dispatcher) InFlight() []string {
	d.mu.Lock()
	ids := make([]string, 0, len(d.inFlight))
	for id := range d.inFlight {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// tryAcquire checks and inserts id in one critical section. It reports false
// for an id that is already in flight and ErrClosed once Shutdown has begun.
// Every successful acquire must be paired with exactly one release.
func (d *Dispatcher) tryAcquire(id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return false, ErrClosed
	}
	if _, ok := d.inFlight[id]; ok {
		return false, nil
	}
	d.inFlight[id] = struct{}{}
	d.wg.Add(1)
	telemetry.DispatcherCommandsInFlight.Inc()
	return true, nil
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[id]; ok {
		delete(d.inFlight, id)
		d.wg.Done()
		telemetry.DispatcherCommandsInFlight.Dec()
	}
}

// claim returns the claimed command, or nil when the envelope is dropped.
// On success the id stays in the in-flight set until execute releases it.
func (d *Dispatcher) claim(ctx context.Context, env domain.Envelope) (*domain.Command, error) {
	if err := env.Validate(); err != nil {
		d.logger.WarnContext(ctx, "discarding malformed envelope", slog.String("error", err.Error()))
		telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeMalformed).Inc()
		return nil, nil
	}
	if !env.IsInsert() || env.Record.Status != domain.StatusPending {
		attrs := []any{slog.String("event", env.EventKind)}
		if env.Record != nil {
			attrs = append(attrs, slog.String("command_id", env.Record.ID), slog.String("status", string(env.Record.Status)))
		}
		d.logger.DebugContext(ctx, "ignoring ineligible envelope", attrs...)
		telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeIgnored).Inc()
		return nil, nil
	}

	cmd := *env.Record
	log := d.commandLogger(&cmd)

	acquired, err := d.tryAcquire(cmd.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		log.DebugContext(ctx, "command already in flight, dropping duplicate delivery")
		telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeDuplicate).Inc()
		return nil, nil
	}

	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatcher.claim")
	defer span.End()
	span.SetAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.type", string(cmd.Type)),
	)

	if err := d.store.UpdateStatus(ctx, cmd.ID, domain.StatusProcessing, ""); err != nil {
		d.release(cmd.ID)

		var conflict *domain.StatusConflictError
		var notFound *domain.CommandNotFoundError
		if errors.As(err, &conflict) || errors.As(err, &notFound) {
			log.InfoContext(ctx, "claim lost, command no longer pending", slog.String("reason", err.Error()))
			telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeConflict).Inc()
			return nil, nil
		}

		log.ErrorContext(ctx, "claim write failed, command left pending", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim write failed")
		telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeClaimError).Inc()
		telemetry.DispatcherStoreErrorsTotal.WithLabelValues("claim").Inc()
		return nil, fmt.Errorf("claim command %s: %w", cmd.ID, err)
	}

	telemetry.DispatcherEnvelopesTotal.WithLabelValues(telemetry.OutcomeClaimed).Inc()
	log.InfoContext(ctx, "command claimed")

	now := d.clock.Now()
	cmd.Status = domain.StatusProcessing
	cmd.ExecutedAt = &now
	d.mirrorCommand(ctx, &cmd)
	return &cmd, nil
}

// execute routes, supervises and finalizes a claimed command. The handler runs
// on the dispatcher's execution context, not parentCtx, so losing the feed
// does not abort physical work already under way.
func (d *Dispatcher) execute(parentCtx context.Context, cmd *domain.Command) {
	defer d.release(cmd.ID)

	ctx, span := otel.Tracer("dispatcher").Start(
		trace.ContextWithSpanContext(d.execCtx, trace.SpanContextFromContext(parentCtx)),
		"dispatcher.execute",
	)
	defer span.End()
	span.SetAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.type", string(cmd.Type)),
	)
	log := d.commandLogger(cmd)

	h, err := d.registry.Get(cmd.Type)
	if err != nil {
		log.ErrorContext(ctx, "no handler for command type", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "no handler registered")
		d.finalize(ctx, cmd, domain.StatusFailed, err.Error())
		return
	}

	start := d.clock.Now()
	status, msg := d.supervise(ctx, h, cmd)
	elapsed := d.clock.Now().Sub(start)
	telemetry.DispatcherHandlerDurationSeconds.WithLabelValues(string(cmd.Type)).Observe(elapsed.Seconds())

	if status == domain.StatusCompleted {
		log.InfoContext(ctx, "command completed", slog.Int64("duration_ms", elapsed.Milliseconds()))
	} else {
		log.ErrorContext(ctx, "command failed",
			slog.String("error", msg),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		span.SetStatus(codes.Error, msg)
	}
	d.finalize(ctx, cmd, status, msg)
}

// supervise runs the handler with a deadline and panic recovery and maps the
// outcome to a terminal status. It returns when the handler returns, the
// deadline passes, or the execution context is cancelled, whichever is first;
// a handler that ignores cancellation is abandoned.
func (d *Dispatcher) supervise(ctx context.Context, h handlers.Handler, cmd *domain.Command) (domain.Status, string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		done <- h.Execute(runCtx, cmd.Payload, cmd.ParkingSpotID)
	}()

	var deadline <-chan time.Time
	timeout := d.handlerTimeout
	if timeout > 0 {
		if holder, ok := h.(handlers.Holder); ok {
			timeout += holder.Hold(cmd.Payload)
		}
		deadline = d.clock.After(timeout)
	}

	select {
	case err := <-done:
		if err == nil {
			return domain.StatusCompleted, ""
		}
		msg := err.Error()
		if msg == "" {
			msg = "handler failed"
		}
		if ctx.Err() != nil {
			return domain.StatusFailed, "interrupted by shutdown: " + msg
		}
		return domain.StatusFailed, msg
	case <-deadline:
		return domain.StatusFailed, fmt.Sprintf("handler timed out after %s", timeout)
	case <-ctx.Done():
		return domain.StatusFailed, "interrupted by shutdown"
	}
}

// finalize performs the single terminal write. Errors are logged, not retried;
// ReapStale eventually fails a command whose finalize write was lost.
func (d *Dispatcher) finalize(ctx context.Context, cmd *domain.Command, status domain.Status, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	log := d.commandLogger(cmd)
	if err := d.store.UpdateStatus(ctx, cmd.ID, status, msg); err != nil {
		log.ErrorContext(ctx, "finalize write failed",
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		telemetry.DispatcherStoreErrorsTotal.WithLabelValues("finalize").Inc()
		return
	}
	telemetry.DispatcherCommandsFinalized.WithLabelValues(string(cmd.Type), string(status)).Inc()
	d.mirrorCommand(ctx, d.terminal(cmd, status, msg))
}

// terminal returns a copy of cmd as the store now holds it after a terminal
// write. Timestamps come from the dispatcher clock.
func (d *Dispatcher) terminal(cmd *domain.Command, status domain.Status, msg string) *domain.Command {
	out := *cmd
	now := d.clock.Now()
	out.Status = status
	out.CompletedAt = &now
	if status == domain.StatusFailed && msg != "" {
		out.ErrorMessage = msg
	}
	return &out
}

func (d *Dispatcher) mirrorCommand(ctx context.Context, cmd *domain.Command) {
	if d.mirror == nil {
		return
	}
	if err := d.mirror.SetCommand(ctx, cmd); err != nil {
		d.commandLogger(cmd).WarnContext(ctx, "status mirror write failed", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) commandLogger(cmd *domain.Command) *slog.Logger {
	return d.logger.With(
		slog.String("command_id", cmd.ID),
		slog.String("command_type", string(cmd.Type)),
	)
}
