package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/orchestrator"
)

type submitPayload struct {
	Provider string                `json:"provider"`
	Prompt   string                `json:"prompt"`
	Inputs   []inputSourcePayload  `json:"inputs"`
	Options  domain.RequestOptions `json:"options"`
	APIKey   string                `json:"api_key,omitempty"`
}

type inputSourcePayload struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	FileName string `json:"file_name,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type generationResponse struct {
	ID           string            `json:"id"`
	ProviderID   string            `json:"provider_id"`
	ProviderType string            `json:"provider_type"`
	Prompt       string            `json:"prompt"`
	Status       domain.Status     `json:"status"`
	Logs         []string          `json:"logs"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Outputs      []outputResponse  `json:"outputs"`
	Queue        map[string]string `json:"queue,omitempty"`
}

type outputResponse struct {
	ID          string  `json:"id"`
	Index       int     `json:"output_index"`
	RemoteURL   string  `json:"remote_url"`
	LocalPath   *string `json:"local_path"`
	ContentType *string `json:"content_type,omitempty"`
	Width       *int    `json:"width,omitempty"`
	Height      *int    `json:"height,omitempty"`
	FileSize    *int64  `json:"file_size,omitempty"`
}

func toGenerationResponse(gen *domain.Generation) generationResponse {
	resp := generationResponse{
		ID:           gen.ID,
		ProviderID:   gen.ProviderID,
		ProviderType: gen.ProviderType,
		Prompt:       gen.Prompt,
		Status:       gen.Status,
		Logs:         gen.Logs,
		ErrorMessage: gen.ErrorMessage,
		CreatedAt:    gen.CreatedAt,
		UpdatedAt:    gen.UpdatedAt,
		FinishedAt:   gen.FinishedAt,
		Outputs:      make([]outputResponse, 0, len(gen.Outputs)),
	}
	if gen.Queue.RequestID != "" {
		resp.Queue = map[string]string{"request_id": gen.Queue.RequestID}
	}
	for _, out := range gen.Outputs {
		resp.Outputs = append(resp.Outputs, outputResponse{
			ID:          out.ID,
			Index:       out.Index,
			RemoteURL:   out.RemoteURL,
			LocalPath:   out.LocalPath,
			ContentType: out.ContentType,
			Width:       out.Width,
			Height:      out.Height,
			FileSize:    out.FileSize,
		})
	}
	return resp
}

// GenerationsCreate validates and enqueues a new generation.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req := orchestrator.SubmitRequest{
		ProviderID: payload.Provider,
		Prompt:     payload.Prompt,
		Options:    payload.Options,
		APIKey:     payload.APIKey,
	}
	for _, in := range payload.Inputs {
		req.Inputs = append(req.Inputs, domain.InputSource{
			Type:     domain.InputSourceType(in.Type),
			Value:    in.Value,
			FileName: in.FileName,
			Data:     in.Data,
		})
	}
	gen, err := a.Orchestrator.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"success": true, "generation": toGenerationResponse(gen)})
}

// GenerationsCancel requests cooperative cancellation. Cancelling a finished
// generation succeeds with no effect.
func (a *App) GenerationsCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Orchestrator.Cancel(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

// GenerationsRetry re-submits a historical generation under a new id.
func (a *App) GenerationsRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gen, err := a.Orchestrator.Retry(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"success": true, "generation": toGenerationResponse(gen)})
}

// GenerationsList pages through history, filterable by status and provider.
func (a *App) GenerationsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ListFilter{
		Status:     domain.Status(q.Get("status")),
		ProviderID: q.Get("provider"),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	gens, err := a.Orchestrator.List(r.Context(), filter)
	if err != nil {
		a.fail(w, err)
		return
	}
	items := make([]generationResponse, 0, len(gens))
	for i := range gens {
		items = append(items, toGenerationResponse(&gens[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "items": items})
}

// GenerationsGet loads one generation with its outputs.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	gen, err := a.Orchestrator.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "generation": toGenerationResponse(gen)})
}

// GenerationsDelete removes a generation, with ?files=true also removing its
// downloaded output files.
func (a *App) GenerationsDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleteFiles := r.URL.Query().Get("files") == "true"
	if err := a.Orchestrator.Delete(r.Context(), id, deleteFiles); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}

// GenerationsDeleteOutput removes a single output by index.
func (a *App) GenerationsDeleteOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		a.error(w, http.StatusBadRequest, "invalid output index")
		return
	}
	deleteFiles := r.URL.Query().Get("files") == "true"
	if err := a.Orchestrator.DeleteOutput(r.Context(), id, index, deleteFiles); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true})
}
