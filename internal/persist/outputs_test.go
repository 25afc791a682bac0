package persist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/storage"
)

type memoryOutputRepo struct {
	rows        map[string][]domain.Output
	createCalls int
}

func newMemoryOutputRepo() *memoryOutputRepo {
	return &memoryOutputRepo{rows: make(map[string][]domain.Output)}
}

func (r *memoryOutputRepo) CreateBatch(ctx context.Context, outputs []domain.Output) error {
	r.createCalls++
	for _, out := range outputs {
		r.rows[out.GenerationID] = append(r.rows[out.GenerationID], out)
	}
	return nil
}

func (r *memoryOutputRepo) ListByGenerationID(ctx context.Context, generationID string) ([]domain.Output, error) {
	return append([]domain.Output(nil), r.rows[generationID]...), nil
}

func (r *memoryOutputRepo) GetByIndex(ctx context.Context, generationID string, index int) (*domain.Output, error) {
	for _, out := range r.rows[generationID] {
		if out.Index == index {
			o := out
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryOutputRepo) DeleteByIndex(ctx context.Context, generationID string, index int) error {
	outputs := r.rows[generationID]
	for i, out := range outputs {
		if out.Index == index {
			r.rows[generationID] = append(outputs[:i], outputs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func newTestPersister(t *testing.T, repo *memoryOutputRepo, broadcaster *events.Broadcaster) (*Persister, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return NewPersister(Options{
		Store:       store,
		Outputs:     repo,
		Broadcaster: broadcaster,
		Logger:      zerolog.Nop(),
	}), dir
}

func TestPersistOutputsIsolatesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.png" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("not really a png"))
	}))
	defer server.Close()

	repo := newMemoryOutputRepo()
	broadcaster := events.NewBroadcaster(zerolog.Nop())
	ch, unsubscribe := broadcaster.Subscribe()
	defer unsubscribe()
	persister, dir := newTestPersister(t, repo, broadcaster)

	outputs, err := persister.PersistOutputs(context.Background(), "gen-1", []domain.ResultImage{
		{URL: server.URL + "/a.png", ContentType: "image/png", Width: 1024, Height: 768},
		{URL: server.URL + "/broken.png", ContentType: "image/png"},
		{URL: server.URL + "/c.png", ContentType: "image/png"},
	})
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("got %d rows, want 3", len(outputs))
	}
	if repo.createCalls != 1 {
		t.Fatalf("createCalls = %d, want one batch insert", repo.createCalls)
	}

	for i, out := range outputs {
		if out.Index != i {
			t.Fatalf("row %d has index %d", i, out.Index)
		}
	}
	if outputs[1].LocalPath != nil {
		t.Fatalf("failed download got local path %q", *outputs[1].LocalPath)
	}
	for _, i := range []int{0, 2} {
		if outputs[i].LocalPath == nil {
			t.Fatalf("row %d missing local path", i)
		}
		if _, err := os.Stat(filepath.Join(dir, *outputs[i].LocalPath)); err != nil {
			t.Fatalf("row %d file not on disk: %v", i, err)
		}
		if outputs[i].FileSize == nil || *outputs[i].FileSize == 0 {
			t.Fatalf("row %d missing file size", i)
		}
	}
	if outputs[0].Width == nil || *outputs[0].Width != 1024 {
		t.Fatal("image dimensions not recorded")
	}

	select {
	case ev := <-ch:
		if ev.Type != events.TypeOutputs || ev.GenerationID != "gen-1" || len(ev.Outputs) != 3 {
			t.Fatalf("unexpected event: %#v", ev)
		}
	default:
		t.Fatal("no outputs event published")
	}
}

func TestPersistOutputsAllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	repo := newMemoryOutputRepo()
	persister, _ := newTestPersister(t, repo, events.NewBroadcaster(zerolog.Nop()))

	_, err := persister.PersistOutputs(context.Background(), "gen-1", []domain.ResultImage{
		{URL: server.URL + "/a.png"},
		{URL: server.URL + "/b.png"},
	})
	if !errors.Is(err, domain.ErrAllDownloadsFailed) {
		t.Fatalf("expected all-downloads-failed, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Fatal("rows written despite every download failing")
	}
}

func TestPersistOutputsRejectsEmptyResult(t *testing.T) {
	repo := newMemoryOutputRepo()
	persister, _ := newTestPersister(t, repo, events.NewBroadcaster(zerolog.Nop()))
	if _, err := persister.PersistOutputs(context.Background(), "gen-1", nil); err == nil {
		t.Fatal("expected error for empty result")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        string
	}{
		{"image/png", "https://cdn.test/a", ".png"},
		{"image/jpeg", "https://cdn.test/a.png", ".jpg"},
		{"image/webp", "", ".webp"},
		{"", "https://cdn.test/pic.JPG", ".jpg"},
		{"", "https://cdn.test/a.webp?sig=x", ".webp"},
		{"application/octet-stream", "https://cdn.test/a.bin", ".png"},
		{"", "", ".png"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType, tt.url); got != tt.want {
			t.Errorf("extensionFor(%q, %q) = %q, want %q", tt.contentType, tt.url, got, tt.want)
		}
	}
}
