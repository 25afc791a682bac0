package provider

import (
	"context"
	"fmt"

	"github.com/KianaMei/genqueue/internal/domain"
)

const placeholderMessage = "this provider backend is not implemented yet"

// PlaceholderAdapter satisfies the Adapter contract for backends that are
// configured but not built. Every call fails with the same explanatory
// message, so the orchestrator needs no branching on provider identity.
type PlaceholderAdapter struct{}

// NewPlaceholderAdapter returns the shared placeholder implementation.
func NewPlaceholderAdapter() *PlaceholderAdapter {
	return &PlaceholderAdapter{}
}

func (p *PlaceholderAdapter) Submit(ctx context.Context, cred string, in SubmitInput) (domain.QueueHandle, error) {
	return domain.QueueHandle{}, p.err()
}

func (p *PlaceholderAdapter) PollStatus(ctx context.Context, cred, statusURL string) (StatusSnapshot, error) {
	return StatusSnapshot{}, p.err()
}

func (p *PlaceholderAdapter) GetResult(ctx context.Context, cred, responseURL string) (Result, error) {
	return Result{}, p.err()
}

func (p *PlaceholderAdapter) Cancel(ctx context.Context, cred, cancelURL string) error {
	return p.err()
}

func (p *PlaceholderAdapter) err() error {
	return fmt.Errorf("%w: %s", domain.ErrProviderFailure, placeholderMessage)
}

var _ Adapter = (*PlaceholderAdapter)(nil)
