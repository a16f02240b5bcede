package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/postgres"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Insert a pending command into ros2_commands",
	Long: `Insert a pending command the same way the web app does. A running
dispatcher picks it up from the change feed.

Example:
  dispatcher enqueue --type EXIT_GATE_DOUBLE --plate 12GA3456 --spot B-12 \
    --payload '{"gate_id":"EXIT-02","duration_seconds":5,"total_fee":3500}'`,
	Args: cobra.NoArgs,
	RunE: runEnqueue,
}

func init() {
	f := enqueueCmd.Flags()
	f.String("type", "", "command type, e.g. EXIT_GATE_SINGLE, EXIT_GATE_DOUBLE, PARKING_GUIDE")
	f.String("plate", "", "license plate")
	f.String("spot", "", "parking spot id")
	f.String("session", "", "parking session id")
	f.String("payload", "{}", "JSON object handed to the handler")
	_ = enqueueCmd.MarkFlagRequired("type")
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	typ, _ := f.GetString("type")
	plate, _ := f.GetString("plate")
	spot, _ := f.GetString("spot")
	session, _ := f.GetString("session")
	payload, _ := f.GetString("payload")

	c, err := buildCommand(typ, plate, spot, session, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, viper.GetString("postgres_dsn"))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewRepository(pool).Create(ctx, c); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), c.ID)
	return nil
}

// buildCommand validates enqueue input and returns a pending command.
func buildCommand(typ, plate, spot, session, payload string) (*domain.Command, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, fmt.Errorf("--type is required")
	}
	raw := json.RawMessage(strings.TrimSpace(payload))
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("--payload must be a JSON object: %w", err)
	}
	return &domain.Command{
		Type:          domain.CommandType(typ),
		Status:        domain.StatusPending,
		Payload:       raw,
		LicensePlate:  plate,
		ParkingSpotID: spot,
		SessionID:     session,
	}, nil
}
