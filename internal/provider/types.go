package provider

import (
	"context"
	"strings"

	"github.com/KianaMei/genqueue/internal/domain"
)

// Type tags the adapter implementation backing a provider.
type Type string

const (
	TypeQueue       Type = "queue"
	TypePlaceholder Type = "placeholder"
)

// SubmitInput is the normalized payload handed to an adapter's Submit.
type SubmitInput struct {
	Prompt    string
	InputRefs []string
	Options   domain.RequestOptions
}

// StatusSnapshot is one poll result, mapped onto the canonical vocabulary.
type StatusSnapshot struct {
	RawStatus    string
	Status       domain.Status
	Logs         []string
	Done         bool
	ErrorMessage string
}

// Result is the final payload of a completed generation.
type Result struct {
	Images []domain.ResultImage
}

// Adapter is the contract every provider backend implements.
type Adapter interface {
	Submit(ctx context.Context, cred string, in SubmitInput) (domain.QueueHandle, error)
	PollStatus(ctx context.Context, cred, statusURL string) (StatusSnapshot, error)
	GetResult(ctx context.Context, cred, responseURL string) (Result, error)
	Cancel(ctx context.Context, cred, cancelURL string) error
}

// MapQueueStatus folds a provider's raw status vocabulary onto the canonical
// five states. Unknown or transitional vocabulary counts as in_progress.
func MapQueueStatus(raw string) (domain.Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "IN_QUEUE", "QUEUED", "PENDING":
		return domain.StatusQueued, false
	case "IN_PROGRESS", "RUNNING", "PROCESSING":
		return domain.StatusInProgress, false
	case "COMPLETED", "OK", "SUCCEEDED":
		return domain.StatusCompleted, true
	case "FAILED", "ERROR":
		return domain.StatusFailed, true
	case "CANCELLED", "CANCELED":
		return domain.StatusCancelled, true
	default:
		return domain.StatusInProgress, false
	}
}
