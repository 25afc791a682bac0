package domain

import "context"

// GenerationRepository defines persistence for generation rows.
type GenerationRepository interface {
	Create(ctx context.Context, gen *Generation) error
	Update(ctx context.Context, gen *Generation) error
	GetByID(ctx context.Context, id string) (*Generation, error)
	List(ctx context.Context, filter ListFilter) ([]Generation, error)
	Delete(ctx context.Context, id string) error
	// MarkInterrupted flips every non-terminal row to failed with the given
	// message and returns the affected ids. Used for startup reconciliation.
	MarkInterrupted(ctx context.Context, message string) ([]string, error)
}

// OutputRepository handles persistence for generated output rows.
type OutputRepository interface {
	CreateBatch(ctx context.Context, outputs []Output) error
	ListByGenerationID(ctx context.Context, generationID string) ([]Output, error)
	GetByIndex(ctx context.Context, generationID string, index int) (*Output, error)
	DeleteByIndex(ctx context.Context, generationID string, index int) error
}

// CredentialRepository stores per-provider API keys.
type CredentialRepository interface {
	Get(ctx context.Context, providerID string) (string, error)
	Set(ctx context.Context, providerID, apiKey string) error
}
