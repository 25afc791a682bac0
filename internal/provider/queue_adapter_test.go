package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KianaMei/genqueue/internal/domain"
)

func TestQueueSubmit(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("submit method = %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-42",
			"status_url":   "https://queue.test/status",
			"response_url": "https://queue.test/response",
			"cancel_url":   "https://queue.test/cancel",
		})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(QueueOptions{Endpoint: server.URL + "/"})
	handle, err := adapter.Submit(context.Background(), "secret", SubmitInput{
		Prompt:    "a lighthouse at dusk",
		InputRefs: []string{"https://example.com/in.png"},
		Options: domain.RequestOptions{
			NumImages: 2,
			ImageSize: domain.ImageSize{Width: 2048, Height: 2048},
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if handle.RequestID != "req-42" || handle.CancelURL != "https://queue.test/cancel" {
		t.Fatalf("unexpected handle: %#v", handle)
	}
	if gotAuth != "Key secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotPayload["prompt"] != "a lighthouse at dusk" {
		t.Fatalf("payload prompt = %v", gotPayload["prompt"])
	}
	size, ok := gotPayload["image_size"].(map[string]any)
	if !ok || size["width"] != float64(2048) {
		t.Fatalf("payload image_size = %v", gotPayload["image_size"])
	}
}

func TestQueueSubmitIncompleteHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id": "req-42",
			"status_url": "https://queue.test/status",
		})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(QueueOptions{Endpoint: server.URL})
	_, err := adapter.Submit(context.Background(), "secret", SubmitInput{Prompt: "x"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestQueuePollStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("logs") != "1" {
			t.Error("logs query parameter not set")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "IN_PROGRESS",
			"logs": []map[string]string{
				{"message": "loading model"},
				{"message": "  "},
				{"message": "rendering"},
			},
		})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(QueueOptions{})
	snapshot, err := adapter.PollStatus(context.Background(), "secret", server.URL+"/status")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if snapshot.Status != domain.StatusInProgress || snapshot.Done {
		t.Fatalf("unexpected snapshot: %#v", snapshot)
	}
	if len(snapshot.Logs) != 2 || snapshot.Logs[1] != "rendering" {
		t.Fatalf("logs = %v", snapshot.Logs)
	}
}

func TestQueueGetResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": []map[string]any{
				{"url": "https://cdn.test/a.png", "content_type": "image/png", "width": 1024, "height": 768},
			},
		})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(QueueOptions{})
	result, err := adapter.GetResult(context.Background(), "secret", server.URL+"/response")
	if err != nil {
		t.Fatalf("get result failed: %v", err)
	}
	if len(result.Images) != 1 || result.Images[0].Width != 1024 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestQueueGetResultEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"images": []any{}})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(QueueOptions{})
	if _, err := adapter.GetResult(context.Background(), "secret", server.URL); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestQueueCancel(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		wantErr bool
	}{
		{"accepted", http.StatusOK, false},
		{"already finished", http.StatusConflict, false},
		{"already gone", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut {
					t.Errorf("cancel method = %s", r.Method)
				}
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			adapter := NewQueueAdapter(QueueOptions{})
			err := adapter.Cancel(context.Background(), "secret", server.URL+"/cancel")
			if tt.wantErr && !errors.Is(err, domain.ErrProviderFailure) {
				t.Fatalf("expected provider failure, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("cancel failed: %v", err)
			}
		})
	}
}

func TestMapQueueStatus(t *testing.T) {
	tests := []struct {
		raw      string
		want     domain.Status
		wantDone bool
	}{
		{"IN_QUEUE", domain.StatusQueued, false},
		{"queued", domain.StatusQueued, false},
		{"IN_PROGRESS", domain.StatusInProgress, false},
		{" running ", domain.StatusInProgress, false},
		{"COMPLETED", domain.StatusCompleted, true},
		{"SUCCEEDED", domain.StatusCompleted, true},
		{"FAILED", domain.StatusFailed, true},
		{"CANCELED", domain.StatusCancelled, true},
		{"CANCELLED", domain.StatusCancelled, true},
		{"WARMING_UP", domain.StatusInProgress, false},
		{"", domain.StatusInProgress, false},
	}
	for _, tt := range tests {
		got, done := MapQueueStatus(tt.raw)
		if got != tt.want || done != tt.wantDone {
			t.Errorf("MapQueueStatus(%q) = (%s, %t), want (%s, %t)", tt.raw, got, done, tt.want, tt.wantDone)
		}
	}
}
