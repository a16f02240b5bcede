package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Dispatcher ──────────────────────────────────────────────────────────────

	DispatcherEnvelopesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "envelopes_total",
		Help:      "Envelopes received, labelled by what the dispatcher did with them.",
	}, []string{"outcome"})

	DispatcherCommandsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "commands_finalized_total",
		Help:      "Commands driven to a terminal status, labelled by command_type and status.",
	}, []string{"command_type", "status"})

	DispatcherCommandsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "commands_inflight",
		Help:      "Commands claimed but not yet finalized.",
	})

	DispatcherHandlerDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "handler_duration_seconds",
		Help:      "Handler execution time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 3, 5, 10, 15, 30, 60, 120},
	}, []string{"command_type"})

	DispatcherStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "store_errors_total",
		Help:      "Failed status writes, labelled by phase (claim or finalize).",
	}, []string{"phase"})

	DispatcherMaintenanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "dispatcher",
		Name:      "maintenance_commands_total",
		Help:      "Commands touched by maintenance sweeps, labelled by job (replay or reap).",
	}, []string{"job"})

	// ─── Actuation ───────────────────────────────────────────────────────────────

	ActuationPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "actuation",
		Name:      "publish_total",
		Help:      "Actuation requests published, labelled by kind (exit or guide) and result.",
	}, []string{"kind", "result"})

	// ─── Feed ────────────────────────────────────────────────────────────────────

	FeedReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Change feed reconnect attempts, labelled by source.",
	}, []string{"source"})
)

// Envelope outcomes used as the DispatcherEnvelopesTotal label.
const (
	OutcomeMalformed  = "malformed"
	OutcomeIgnored    = "ignored"
	OutcomeDuplicate  = "duplicate"
	OutcomeConflict   = "conflict"
	OutcomeClaimError = "claim_error"
	OutcomeClaimed    = "claimed"
)
