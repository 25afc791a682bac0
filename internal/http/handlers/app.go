package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/orchestrator"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Credentials  domain.CredentialRepository
	Broadcaster  *events.Broadcaster
	Logger       infra.Logger
}

func NewApp(orch *orchestrator.Orchestrator, creds domain.CredentialRepository, broadcaster *events.Broadcaster, logger infra.Logger) *App {
	return &App{
		Orchestrator: orch,
		Credentials:  creds,
		Broadcaster:  broadcaster,
		Logger:       logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]any{"success": false, "error": message})
}

// fail maps domain errors onto HTTP status codes and the uniform
// {success,error} response shape.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownProvider),
		errors.Is(err, domain.ErrProviderDisabled):
		a.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, err.Error())
	default:
		a.Logger.Error().Err(err).Msg("handlers: internal error")
		a.error(w, http.StatusInternalServerError, err.Error())
	}
}
