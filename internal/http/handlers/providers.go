package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type credentialPayload struct {
	APIKey string `json:"api_key"`
}

// ProvidersSetCredential stores an API key for a provider. Blank keys are
// rejected so an empty submission cannot wipe a stored credential.
func (a *App) ProvidersSetCredential(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	var payload credentialPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.APIKey) == "" {
		a.error(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if err := a.Credentials.Set(r.Context(), providerID, payload.APIKey); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}
