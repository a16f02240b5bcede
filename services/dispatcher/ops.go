package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/archers7727/rokey5/internal/domain"
	"github.com/archers7727/rokey5/pkg/telemetry"
)

// CommandReader reads one command by id.
type CommandReader interface {
	GetByID(ctx context.Context, id string) (*domain.Command, error)
}

// MirrorReader is the fast path for command reads.
type MirrorReader interface {
	GetCommand(ctx context.Context, id string) (*domain.Command, error)
}

// OpsAPI serves read-only command state for operators.
type OpsAPI struct {
	dispatcher *Dispatcher
	repo       CommandReader
	mirror     MirrorReader // nil = repository only
	logger     *slog.Logger
}

func NewOpsAPI(d *Dispatcher, repo CommandReader, mirror MirrorReader, logger *slog.Logger) *OpsAPI {
	return &OpsAPI{dispatcher: d, repo: repo, mirror: mirror, logger: logger}
}

// Mount registers the /v1 routes.
func (a *OpsAPI) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/commands/{id}", a.GetCommand)
		r.Get("/inflight", a.InFlight)
	})
}

// GetCommand handles GET /v1/commands/{id}.
func (a *OpsAPI) GetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var notFound *domain.CommandNotFoundError
	if a.mirror != nil {
		cmd, err := a.mirror.GetCommand(ctx, id)
		if err == nil {
			telemetry.WriteJSON(w, http.StatusOK, cmd)
			return
		}
		if !errors.As(err, &notFound) {
			a.logger.Warn("status mirror read failed", slog.String("command_id", id), slog.String("error", err.Error()))
		}
	}

	// Slow path: mirror miss, expiry or outage.
	cmd, err := a.repo.GetByID(ctx, id)
	if err != nil {
		if errors.As(err, &notFound) {
			telemetry.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "command not found"})
			return
		}
		a.logger.Error("postgres error", slog.String("command_id", id), slog.String("error", err.Error()))
		telemetry.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to retrieve command"})
		return
	}
	telemetry.WriteJSON(w, http.StatusOK, cmd)
}

// InFlight handles GET /v1/inflight.
func (a *OpsAPI) InFlight(w http.ResponseWriter, _ *http.Request) {
	ids := a.dispatcher.InFlight()
	telemetry.WriteJSON(w, http.StatusOK, map[string]any{"count": len(ids), "command_ids": ids})
}
