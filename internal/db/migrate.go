package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Every statement is idempotent so the function
// can run unconditionally at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id UUID PRIMARY KEY,
			provider_id TEXT NOT NULL,
			provider_type TEXT NOT NULL,
			prompt TEXT NOT NULL,
			inputs JSONB NOT NULL DEFAULT '[]'::jsonb,
			options JSONB NOT NULL DEFAULT '{}'::jsonb,
			queue_request_id TEXT,
			status_url TEXT,
			response_url TEXT,
			cancel_url TEXT,
			status TEXT NOT NULL DEFAULT 'queued'
				CHECK (status IN ('queued', 'in_progress', 'completed', 'failed', 'cancelled')),
			logs JSONB NOT NULL DEFAULT '[]'::jsonb,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_status ON generations (status);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_provider ON generations (provider_id);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations (created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS outputs (
			id UUID PRIMARY KEY,
			generation_id UUID NOT NULL REFERENCES generations (id) ON DELETE CASCADE,
			output_index INT NOT NULL,
			remote_url TEXT NOT NULL,
			local_path TEXT,
			content_type TEXT,
			width INT,
			height INT,
			file_size BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (generation_id, output_index)
		);`,
		`CREATE TABLE IF NOT EXISTS provider_credentials (
			provider_id TEXT PRIMARY KEY,
			api_key TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}
