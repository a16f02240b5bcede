package domain_test

import (
	"testing"

	"github.com/archers7727/rokey5/internal/domain"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   string
	}{
		{domain.StatusPending, "pending"},
		{domain.StatusProcessing, "processing"},
		{domain.StatusCompleted, "completed"},
		{domain.StatusFailed, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("Status value = %q, want %q", tt.status, tt.want)
			}
			if !tt.status.IsValid() {
				t.Errorf("IsValid(%q) = false, want true", tt.status)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []domain.Status{domain.StatusCompleted, domain.StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = false, want true", s)
		}
	}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusProcessing} {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%q) = true, want false", s)
		}
	}
}

func TestIsValid_Unknown(t *testing.T) {
	for _, s := range []domain.Status{"", "PENDING", "queued", "done"} {
		if s.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", s)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	all := []domain.Status{
		domain.StatusPending, domain.StatusProcessing,
		domain.StatusCompleted, domain.StatusFailed,
	}
	legal := map[[2]domain.Status]bool{
		{domain.StatusPending, domain.StatusProcessing}:   true,
		{domain.StatusProcessing, domain.StatusCompleted}: true,
		{domain.StatusProcessing, domain.StatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]domain.Status{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: CanTransitionTo = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestPrevious(t *testing.T) {
	if _, ok := domain.StatusPending.Previous(); ok {
		t.Error("pending must have no predecessor")
	}
	prev, ok := domain.StatusFailed.Previous()
	if !ok || prev != domain.StatusProcessing {
		t.Errorf("Previous(failed) = %q, %v; want processing, true", prev, ok)
	}
}
