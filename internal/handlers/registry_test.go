package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/internal/handlers"
)

// stub is a minimal Handler implementation for registry tests.
type stub struct{ commandType domain.CommandType }

func (s *stub) CommandType() domain.CommandType                        { return s.commandType }
func (s *stub) Execute(context.Context, json.RawMessage, string) error { return nil }

func TestRegistry_Get_KnownType(t *testing.T) {
	reg := handlers.NewRegistry()
	reg.Register(&stub{commandType: domain.CommandExitGateSingle})

	h, err := reg.Get(domain.CommandExitGateSingle)
	require.NoError(t, err)
	assert.Equal(t, domain.CommandExitGateSingle, h.CommandType())
}

func TestRegistry_Get_UnknownType(t *testing.T) {
	reg := handlers.NewRegistry()

	_, err := reg.Get("VALET_PARK")
	require.Error(t, err)

	var unknown *domain.UnknownCommandTypeError
	require.True(t, errors.As(err, &unknown), "expected UnknownCommandTypeError, got %T", err)
	assert.Equal(t, domain.CommandType("VALET_PARK"), unknown.CommandType)
	assert.Equal(t, `unknown command type "VALET_PARK"`, err.Error())
}

func TestRegistry_Register_Overwrites(t *testing.T) {
	reg := handlers.NewRegistry()
	first := &stub{commandType: domain.CommandParkingGuide}
	second := &stub{commandType: domain.CommandParkingGuide}
	reg.Register(first)
	reg.Register(second)

	h, err := reg.Get(domain.CommandParkingGuide)
	require.NoError(t, err)
	assert.Same(t, second, h)
	assert.Len(t, reg.Types(), 1)
}

func TestRegistry_MustRegister_RejectsDuplicate(t *testing.T) {
	reg := handlers.NewRegistry()
	first := &stub{commandType: domain.CommandExitGateOpen}
	reg.MustRegister(first)

	assert.PanicsWithValue(t, `handlers: duplicate registration for command type "EXIT_GATE_OPEN"`, func() {
		reg.MustRegister(&stub{commandType: domain.CommandExitGateOpen})
	})
	h, err := reg.Get(domain.CommandExitGateOpen)
	require.NoError(t, err)
	assert.Same(t, first, h, "the original handler stays registered")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := handlers.NewRegistry()
	reg.Register(&stub{commandType: domain.CommandExitGateSingle})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); reg.Register(&stub{commandType: domain.CommandExitGateDouble}) }()
		go func() { defer wg.Done(); _, _ = reg.Get(domain.CommandExitGateSingle) }()
	}
	wg.Wait()
}

func TestNewDefaultRegistry_Types(t *testing.T) {
	reg := handlers.NewDefaultRegistry(handlers.Options{Publisher: &recordingPublisher{}})
	assert.Equal(t, []domain.CommandType{
		domain.CommandExitGateDouble,
		domain.CommandExitGateOpen,
		domain.CommandExitGateSingle,
		domain.CommandParkingGuide,
	}, reg.Types())

	for _, typ := range reg.Types() {
		h, err := reg.Get(typ)
		require.NoError(t, err)
		_, ok := h.(handlers.Holder)
		assert.True(t, ok, "%s handler reports its hold", typ)
	}
}
