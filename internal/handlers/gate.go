package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/archers7727/rokey5/internal/actuation"
	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/pkg/clock"
)

const (
	DefaultGateID          = "EXIT-01"
	DefaultDurationSeconds = 10

	// MaxDurationSeconds bounds how long one command may hold a gate open.
	MaxDurationSeconds = 3600
)

// gatePayload is the expected JSON structure of an exit command payload.
type gatePayload struct {
	GateID          string   `json:"gate_id"`
	DurationSeconds *int     `json:"duration_seconds"`
	TotalFee        *float64 `json:"total_fee"`
	LicensePlate    string   `json:"license_plate"`
}

// GateHandler opens an exit gate for a fixed number of vehicles and holds it
// open for the requested duration.
type GateHandler struct {
	commandType  domain.CommandType
	vehicleCount int
	publisher    actuation.Publisher
	clock        clock.Clock
	locks        *GateLocks // nil disables per-gate exclusion
	logger       *slog.Logger
}

// GateOptions carries the collaborators shared by every gate handler.
type GateOptions struct {
	Publisher actuation.Publisher
	Clock     clock.Clock
	Locks     *GateLocks
	Logger    *slog.Logger
}

// NewGateHandler creates a handler for t that lets vehicles cars through per command.
func NewGateHandler(t domain.CommandType, vehicles int, opts GateOptions) *GateHandler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &GateHandler{
		commandType:  t,
		vehicleCount: vehicles,
		publisher:    opts.Publisher,
		clock:        opts.Clock,
		locks:        opts.Locks,
		logger:       opts.Logger,
	}
}

func (h *GateHandler) CommandType() domain.CommandType { return h.commandType }

func (h *GateHandler) Execute(ctx context.Context, payload json.RawMessage, parkingSpot string) error {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "handler.exit_gate")
	defer span.End()

	p, err := h.decode(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		return err
	}
	duration := p.duration()

	span.SetAttributes(
		attribute.String("gate.id", p.GateID),
		attribute.Int("gate.vehicle_count", h.vehicleCount),
		attribute.Int("gate.duration_seconds", duration),
	)

	if h.locks != nil {
		unlock, err := h.locks.Lock(ctx, p.GateID)
		if err != nil {
			err = fmt.Errorf("waiting for gate %s: %w", p.GateID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "gate busy")
			return err
		}
		defer unlock()
	}

	log := h.logger.With(slog.String("gate_id", p.GateID), slog.String("parking_spot", parkingSpot))

	req := actuation.ExitRequest{
		GateID:          p.GateID,
		VehicleCount:    h.vehicleCount,
		DurationSeconds: duration,
		ParkingSpot:     parkingSpot,
	}
	if err := h.publisher.PublishExit(ctx, req); err != nil {
		// Publish failures never fail the command.
		log.WarnContext(ctx, "exit actuation publish failed", slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "gate open",
		slog.Int("vehicle_count", h.vehicleCount),
		slog.Int("duration_seconds", duration),
	)
	if err := clock.Sleep(ctx, h.clock, time.Duration(duration)*time.Second); err != nil {
		err = fmt.Errorf("gate %s interrupted: %w", p.GateID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "interrupted")
		return err
	}

	attrs := []any{slog.Int("vehicle_count", h.vehicleCount)}
	if p.LicensePlate != "" {
		attrs = append(attrs, slog.String("license_plate", p.LicensePlate))
	}
	if p.TotalFee != nil {
		attrs = append(attrs, slog.Float64("total_fee", *p.TotalFee))
	}
	log.InfoContext(ctx, "exit receipt", attrs...)
	return nil
}

// Hold reports how long Execute keeps the gate open for payload. Undecodable
// payloads hold for zero since Execute rejects them before opening.
func (h *GateHandler) Hold(payload json.RawMessage) time.Duration {
	p, err := h.decode(payload)
	if err != nil {
		return 0
	}
	return time.Duration(p.duration()) * time.Second
}

func (p gatePayload) duration() int {
	if p.DurationSeconds == nil {
		return DefaultDurationSeconds
	}
	return *p.DurationSeconds
}

func (h *GateHandler) decode(raw json.RawMessage) (gatePayload, error) {
	var p gatePayload
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, &domain.InvalidPayloadError{CommandType: h.commandType, Reason: err.Error()}
		}
	}
	if p.GateID == "" {
		p.GateID = DefaultGateID
	}
	if p.DurationSeconds != nil && *p.DurationSeconds < 0 {
		return p, &domain.InvalidPayloadError{
			CommandType: h.commandType,
			Reason:      fmt.Sprintf("duration_seconds must not be negative, got %d", *p.DurationSeconds),
		}
	}
	if p.DurationSeconds != nil && *p.DurationSeconds > MaxDurationSeconds {
		return p, &domain.InvalidPayloadError{
			CommandType: h.commandType,
			Reason:      fmt.Sprintf("duration_seconds must be at most %d, got %d", MaxDurationSeconds, *p.DurationSeconds),
		}
	}
	return p, nil
}
