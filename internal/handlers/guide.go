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

// DefaultGuideSettle is how long the guide lights stay on before the command completes.
const DefaultGuideSettle = 3 * time.Second

type guidePayload struct {
	TargetSpot   string `json:"target_spot"`
	LicensePlate string `json:"license_plate"`
}

// GuideHandler lights the path to a parking spot.
type GuideHandler struct {
	publisher actuation.Publisher
	clock     clock.Clock
	settle    time.Duration
	logger    *slog.Logger
}

func NewGuideHandler(pub actuation.Publisher, clk clock.Clock, settle time.Duration, logger *slog.Logger) *GuideHandler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuideHandler{publisher: pub, clock: clk, settle: settle, logger: logger}
}

func (h *GuideHandler) CommandType() domain.CommandType { return domain.CommandParkingGuide }

// Hold reports the settle time Execute waits after lighting the path.
func (h *GuideHandler) Hold(json.RawMessage) time.Duration { return h.settle }

func (h *GuideHandler) Execute(ctx context.Context, payload json.RawMessage, parkingSpot string) error {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "handler.parking_guide")
	defer span.End()

	var p guidePayload
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &p); err != nil {
			perr := &domain.InvalidPayloadError{CommandType: domain.CommandParkingGuide, Reason: err.Error()}
			span.RecordError(perr)
			span.SetStatus(codes.Error, "invalid payload")
			return perr
		}
	}
	target := p.TargetSpot
	if target == "" {
		target = parkingSpot
	}
	if target == "" {
		err := &domain.InvalidPayloadError{
			CommandType: domain.CommandParkingGuide,
			Reason:      "no target_spot and no parking spot on the command",
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing target")
		return err
	}
	span.SetAttributes(attribute.String("guide.target_spot", target))

	req := actuation.GuideRequest{TargetSpot: target, LicensePlate: p.LicensePlate}
	if err := h.publisher.PublishGuide(ctx, req); err != nil {
		h.logger.WarnContext(ctx, "guide actuation publish failed",
			slog.String("target_spot", target),
			slog.String("error", err.Error()),
		)
	}

	if err := clock.Sleep(ctx, h.clock, h.settle); err != nil {
		err = fmt.Errorf("guide to %s interrupted: %w", target, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "interrupted")
		return err
	}
	h.logger.InfoContext(ctx, "guide complete", slog.String("target_spot", target))
	return nil
}
