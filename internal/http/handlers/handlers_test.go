package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/http/handlers"
	"github.com/KianaMei/genqueue/internal/http/httpapi"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/orchestrator"
	"github.com/KianaMei/genqueue/internal/provider"
)

type memGenerationRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.Generation
}

func (r *memGenerationRepo) Create(ctx context.Context, gen *domain.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *gen
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	r.rows[gen.ID] = &c
	return nil
}

func (r *memGenerationRepo) Update(ctx context.Context, gen *domain.Generation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[gen.ID]
	if !ok || existing.Status.IsTerminal() {
		return nil
	}
	c := *gen
	c.UpdatedAt = time.Now().UTC()
	r.rows[gen.ID] = &c
	return nil
}

func (r *memGenerationRepo) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gen, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *gen
	return &c, nil
}

func (r *memGenerationRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gens []domain.Generation
	for _, gen := range r.rows {
		gens = append(gens, *gen)
	}
	return gens, nil
}

func (r *memGenerationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memGenerationRepo) MarkInterrupted(ctx context.Context, message string) ([]string, error) {
	return nil, nil
}

type memOutputRepo struct{}

func (memOutputRepo) CreateBatch(ctx context.Context, outputs []domain.Output) error { return nil }
func (memOutputRepo) ListByGenerationID(ctx context.Context, generationID string) ([]domain.Output, error) {
	return nil, nil
}
func (memOutputRepo) GetByIndex(ctx context.Context, generationID string, index int) (*domain.Output, error) {
	return nil, domain.ErrNotFound
}
func (memOutputRepo) DeleteByIndex(ctx context.Context, generationID string, index int) error {
	return domain.ErrNotFound
}

type memCredentialRepo struct {
	mu   sync.Mutex
	keys map[string]string
}

func (r *memCredentialRepo) Get(ctx context.Context, providerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[providerID], nil
}

func (r *memCredentialRepo) Set(ctx context.Context, providerID, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[providerID] = apiKey
	return nil
}

type idleAdapter struct{}

func (idleAdapter) Submit(ctx context.Context, cred string, in provider.SubmitInput) (domain.QueueHandle, error) {
	return domain.QueueHandle{
		RequestID:   "req-1",
		StatusURL:   "https://queue.test/status",
		ResponseURL: "https://queue.test/response",
		CancelURL:   "https://queue.test/cancel",
	}, nil
}

func (idleAdapter) PollStatus(ctx context.Context, cred, statusURL string) (provider.StatusSnapshot, error) {
	return provider.StatusSnapshot{Status: domain.StatusInProgress}, nil
}

func (idleAdapter) GetResult(ctx context.Context, cred, responseURL string) (provider.Result, error) {
	return provider.Result{}, nil
}

func (idleAdapter) Cancel(ctx context.Context, cred, cancelURL string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *memGenerationRepo) {
	t.Helper()
	generations := &memGenerationRepo{rows: make(map[string]*domain.Generation)}
	credentials := &memCredentialRepo{keys: make(map[string]string)}
	broadcaster := events.NewBroadcaster(zerolog.Nop())

	registry := provider.NewRegistry(
		[]provider.Config{{ID: "fal", Type: provider.TypeQueue, Enabled: true, APIKey: "k"}},
		map[provider.Type]provider.Adapter{provider.TypeQueue: idleAdapter{}},
		credentials,
	)
	orch := orchestrator.New(orchestrator.Options{
		Registry:     registry,
		Generations:  generations,
		Outputs:      memOutputRepo{},
		Broadcaster:  broadcaster,
		Logger:       zerolog.Nop(),
		PollInterval: time.Hour,
	})

	app := handlers.NewApp(orch, credentials, broadcaster, zerolog.Nop())
	cfg := &infra.Config{RateLimitPerMin: 1000}
	server := httptest.NewServer(httpapi.NewRouter(app, cfg, zerolog.Nop(), nil))
	t.Cleanup(server.Close)
	return server, generations
}

func TestGenerationsCreateAccepted(t *testing.T) {
	server, generations := newTestServer(t)

	body := `{"provider":"fal","prompt":"a quiet harbor","inputs":[{"type":"url","value":"https://example.com/in.png"}]}`
	resp, err := http.Post(server.URL+"/v1/generations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var decoded struct {
		Success    bool `json:"success"`
		Generation struct {
			ID     string        `json:"id"`
			Status domain.Status `json:"status"`
		} `json:"generation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Success || decoded.Generation.ID == "" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
	if decoded.Generation.Status != domain.StatusQueued {
		t.Fatalf("status = %s, want queued", decoded.Generation.Status)
	}
	if _, err := generations.GetByID(context.Background(), decoded.Generation.ID); err != nil {
		t.Fatalf("row not persisted: %v", err)
	}
}

func TestGenerationsCreateValidationError(t *testing.T) {
	server, generations := newTestServer(t)

	body := `{"provider":"fal","prompt":"","inputs":[{"type":"url","value":"https://example.com/in.png"}]}`
	resp, err := http.Post(server.URL+"/v1/generations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var decoded struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Success || decoded.Error == "" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
	if rows, _ := generations.List(context.Background(), domain.ListFilter{}); len(rows) != 0 {
		t.Fatalf("invalid submit created %d rows", len(rows))
	}
}

func TestGenerationsGetNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/generations/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProvidersSetCredentialRejectsBlank(t *testing.T) {
	server, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/v1/providers/fal/credential", strings.NewReader(`{"api_key":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var decoded struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Status != "ok" {
		t.Fatalf("health status = %q", decoded.Status)
	}
}
