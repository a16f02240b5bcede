package actuation

import (
	"context"
	"log/slog"

	"github.com/archers7727/rokey5/pkg/telemetry"
)

// LogPublisher only logs requests. Used for dry runs when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishExit(ctx context.Context, req ExitRequest) error {
	p.logger.InfoContext(ctx, "exit actuation (dry run)",
		slog.String("gate_id", req.GateID),
		slog.Int("vehicle_count", req.VehicleCount),
		slog.Int("duration_seconds", req.DurationSeconds),
		slog.String("parking_spot", req.ParkingSpot),
		slog.String("legacy", req.Legacy()),
	)
	telemetry.ActuationPublishTotal.WithLabelValues(kindExit, "dry_run").Inc()
	return nil
}

func (p *LogPublisher) PublishGuide(ctx context.Context, req GuideRequest) error {
	p.logger.InfoContext(ctx, "guide actuation (dry run)",
		slog.String("target_spot", req.TargetSpot),
		slog.String("license_plate", req.LicensePlate),
	)
	telemetry.ActuationPublishTotal.WithLabelValues(kindGuide, "dry_run").Inc()
	return nil
}
