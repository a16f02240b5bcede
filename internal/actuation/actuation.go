// Package actuation sends physical actuation requests (gate openings, guide
// lights) to the robot side of the parking lot.
package actuation

import (
	"context"
	"fmt"
)

// Kafka topics the robot bridge subscribes to.
const (
	TopicExit  = "parking.exit_command"
	TopicGuide = "parking.guide_command"
)

// LegacyHeader carries the pipe-delimited line older bridge nodes parse.
const LegacyHeader = "legacy"

// Publisher is the actuation call made by handlers. Implementations must be
// safe for concurrent use.
type Publisher interface {
	PublishExit(ctx context.Context, req ExitRequest) error
	PublishGuide(ctx context.Context, req GuideRequest) error
}

// ExitRequest asks an exit gate to open for a number of vehicles.
type ExitRequest struct {
	GateID          string `json:"gate_id"`
	VehicleCount    int    `json:"vehicle_count"`
	DurationSeconds int    `json:"duration_seconds"`
	ParkingSpot     string `json:"parking_spot,omitempty"`
}

// Legacy renders the request as EXIT|gate|count|duration|spot.
func (r ExitRequest) Legacy() string {
	return fmt.Sprintf("EXIT|%s|%d|%d|%s", r.GateID, r.VehicleCount, r.DurationSeconds, r.ParkingSpot)
}

// GuideRequest asks the guidance system to light the path to a spot.
type GuideRequest struct {
	TargetSpot   string `json:"target_spot"`
	LicensePlate string `json:"license_plate,omitempty"`
}

// Legacy renders the request as GUIDE|spot.
func (r GuideRequest) Legacy() string {
	return "GUIDE|" + r.TargetSpot
}

const (
	kindExit  = "exit"
	kindGuide = "guide"
)
