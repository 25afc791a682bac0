package handlers

import "net/http"

// Health reports liveness along with the number of in-flight generations.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": a.Orchestrator.ActiveCount(),
	})
}
