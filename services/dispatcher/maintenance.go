package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/pkg/telemetry"
)

const (
	sweepBatch = 100

	// AbandonedMessage is the error_message written by ReapStale.
	AbandonedMessage = "abandoned in processing"
)

var errNoLister = errors.New("maintenance requires a command lister")

// Replay resubmits pending commands created more than grace ago. It covers
// rows inserted while the process was down and claims that failed on a store
// error. Returns the number of commands claimed.
func (d *Dispatcher) Replay(ctx context.Context, grace time.Duration) (int, error) {
	if d.lister == nil {
		return 0, errNoLister
	}
	cmds, err := d.lister.ListByStatus(ctx, domain.StatusPending, d.clock.Now().Add(-grace), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list pending commands: %w", err)
	}

	replayed := 0
	for _, cmd := range cmds {
		claimed, err := d.submit(ctx, domain.InsertEnvelope(cmd))
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return replayed, err
			}
			continue // logged by claim
		}
		if claimed {
			replayed++
		}
	}
	if replayed > 0 {
		telemetry.DispatcherMaintenanceTotal.WithLabelValues("replay").Add(float64(replayed))
		d.logger.InfoContext(ctx, "replayed pending commands", slog.Int("count", replayed))
	}
	return replayed, nil
}

// ReapStale fails processing commands whose execution started more than
// olderThan ago and that this process is not running. It covers crashes
// between claim and finalize. Returns the number of commands reaped.
func (d *Dispatcher) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if d.lister == nil {
		return 0, errNoLister
	}
	cmds, err := d.lister.ListByStatus(ctx, domain.StatusProcessing, d.clock.Now().Add(-olderThan), sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list processing commands: %w", err)
	}

	reaped := 0
	for _, cmd := range cmds {
		acquired, err := d.tryAcquire(cmd.ID)
		if err != nil {
			return reaped, err
		}
		if !acquired {
			continue // still running here
		}

		err = d.store.UpdateStatus(ctx, cmd.ID, domain.StatusFailed, AbandonedMessage)
		d.release(cmd.ID)

		var conflict *domain.StatusConflictError
		switch {
		case err == nil:
			reaped++
			telemetry.DispatcherCommandsFinalized.WithLabelValues(string(cmd.Type), string(domain.StatusFailed)).Inc()
			d.mirrorCommand(ctx, d.terminal(cmd, domain.StatusFailed, AbandonedMessage))
			d.commandLogger(cmd).WarnContext(ctx, "reaped abandoned command")
		case errors.As(err, &conflict):
			// Finalized elsewhere since the listing.
		default:
			d.commandLogger(cmd).ErrorContext(ctx, "reap write failed", slog.String("error", err.Error()))
			telemetry.DispatcherStoreErrorsTotal.WithLabelValues("finalize").Inc()
		}
	}
	if reaped > 0 {
		telemetry.DispatcherMaintenanceTotal.WithLabelValues("reap").Add(float64(reaped))
	}
	return reaped, nil
}

// MaintenanceConfig configures the periodic sweeps.
type MaintenanceConfig struct {
	Schedule    string // cron spec, e.g. "@every 1m"
	ReplayGrace time.Duration
	ReapAfter   time.Duration
}

// StartMaintenance runs both sweeps once, then on cfg.Schedule until ctx is
// cancelled. The returned stop func waits for a running sweep to finish.
func (d *Dispatcher) StartMaintenance(ctx context.Context, cfg MaintenanceConfig) (stop func(), err error) {
	if d.lister == nil {
		return nil, errNoLister
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", cfg.Schedule, err)
	}

	sweep := func() {
		if _, err := d.ReapStale(ctx, cfg.ReapAfter); err != nil && ctx.Err() == nil {
			d.logger.Error("reap sweep failed", slog.String("error", err.Error()))
		}
		if _, err := d.Replay(ctx, cfg.ReplayGrace); err != nil && ctx.Err() == nil {
			d.logger.Error("replay sweep failed", slog.String("error", err.Error()))
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(sweep))

	sweep()
	c.Start()
	d.logger.Info("maintenance scheduled", slog.String("schedule", cfg.Schedule))

	return func() { <-c.Stop().Done() }, nil
}
