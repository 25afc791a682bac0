package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CredentialRepositoryPG stores per-provider API keys in PostgreSQL.
type CredentialRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository constructs a credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepositoryPG {
	return &CredentialRepositoryPG{pool: pool}
}

// Get returns the stored API key for the provider, or "" when none is stored.
func (r *CredentialRepositoryPG) Get(ctx context.Context, providerID string) (string, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT api_key FROM provider_credentials WHERE provider_id = $1;`,
		providerID,
	)
	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// Set upserts the API key for the provider. Empty keys are rejected so a blank
// submission can never wipe a previously stored credential.
func (r *CredentialRepositoryPG) Set(ctx context.Context, providerID, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("api key is required")
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO provider_credentials (provider_id, api_key, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider_id) DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = NOW();
`, providerID, apiKey)
	return err
}
