package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/archers7727/rokey5/internal/domain"
)

func TestBuildCommand(t *testing.T) {
	c, err := buildCommand(" EXIT_GATE_DOUBLE ", "12GA3456", "B-12", "", `{"duration_seconds":5}`)
	require.NoError(t, err)
	assert.Equal(t, domain.CommandExitGateDouble, c.Type)
	assert.Equal(t, domain.StatusPending, c.Status)
	assert.Equal(t, "12GA3456", c.LicensePlate)
	assert.Equal(t, "B-12", c.ParkingSpotID)
	assert.JSONEq(t, `{"duration_seconds":5}`, string(c.Payload))

	c, err = buildCommand("PARKING_GUIDE", "", "", "", "  ")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(c.Payload))

	_, err = buildCommand("", "", "", "", "{}")
	assert.Error(t, err)
	_, err = buildCommand("PARKING_GUIDE", "", "", "", `[1,2]`)
	assert.Error(t, err)
	_, err = buildCommand("PARKING_GUIDE", "", "", "", `{"target_spot":`)
	assert.Error(t, err)
}

func TestWriteCommand(t *testing.T) {
	done := time.Date(2026, 10, 19, 9, 0, 7, 0, time.UTC)
	c := &domain.Command{
		ID:           "11111111-1111-1111-1111-111111111111",
		Type:         domain.CommandParkingGuide,
		Status:       domain.StatusFailed,
		CreatedAt:    done.Add(-7 * time.Second),
		CompletedAt:  &done,
		ErrorMessage: "guide lights offline",
	}

	var js bytes.Buffer
	require.NoError(t, writeCommand(&js, c, "json"))
	var back domain.Command
	require.NoError(t, json.Unmarshal(js.Bytes(), &back))
	assert.Equal(t, c.ID, back.ID)
	assert.Equal(t, "guide lights offline", back.ErrorMessage)

	var ym bytes.Buffer
	require.NoError(t, writeCommand(&ym, c, "yaml"))
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &doc))
	assert.Equal(t, "PARKING_GUIDE", doc["command_type"])
	assert.Equal(t, "failed", doc["status"])
	assert.Equal(t, "guide lights offline", doc["error_message"])
	assert.NotContains(t, doc, "executed_at")
}

func TestWriteConfig(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "dispatcher.yaml")

	require.NoError(t, writeConfig(dest, defaultDispatcherYAML, false))
	err := writeConfig(dest, "log_level: debug\n", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeConfig(dest, "log_level: debug\n", true))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "log_level: debug\n", string(got))
}

func TestDefaultConfigParses(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(defaultDispatcherYAML), &doc))
	assert.Equal(t, "postgres", doc["feed"])
	assert.Equal(t, "kafka", doc["actuation"])
	assert.Equal(t, true, doc["gate_lock"])
	assert.NotContains(t, doc, "redis_addr")
}
