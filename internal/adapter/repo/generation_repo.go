package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KianaMei/genqueue/internal/domain"
)

const maxListLimit = 100

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

// Create inserts a new generation row.
func (r *GenerationRepositoryPG) Create(ctx context.Context, gen *domain.Generation) error {
	inputs, err := json.Marshal(gen.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	options, err := json.Marshal(gen.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	logs, err := json.Marshal(gen.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	query := `
INSERT INTO generations (id, provider_id, provider_type, prompt, inputs, options, status, logs, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''));
`
	_, err = r.pool.Exec(ctx, query,
		gen.ID,
		gen.ProviderID,
		gen.ProviderType,
		gen.Prompt,
		inputs,
		options,
		gen.Status,
		logs,
		gen.ErrorMessage,
	)
	return err
}

// Update rewrites the mutable columns of a generation row. Terminal rows are
// never updated again; the single-writer rule in the orchestrator guarantees
// the guard is not racing another mutator.
func (r *GenerationRepositoryPG) Update(ctx context.Context, gen *domain.Generation) error {
	logs, err := json.Marshal(gen.Logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	query := `
UPDATE generations
SET queue_request_id = $2,
    status_url = $3,
    response_url = $4,
    cancel_url = $5,
    status = $6,
    logs = $7,
    error_message = NULLIF($8, ''),
    finished_at = $9,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	_, err = r.pool.Exec(ctx, query,
		gen.ID,
		nullableString(gen.Queue.RequestID),
		nullableString(gen.Queue.StatusURL),
		nullableString(gen.Queue.ResponseURL),
		nullableString(gen.Queue.CancelURL),
		gen.Status,
		logs,
		gen.ErrorMessage,
		gen.FinishedAt,
	)
	return err
}

// GetByID fetches a generation with its outputs.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	query := `
SELECT id, provider_id, provider_type, prompt, inputs, options,
       queue_request_id, status_url, response_url, cancel_url,
       status, logs, COALESCE(error_message, ''), created_at, updated_at, finished_at
FROM generations
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	gen, err := scanGeneration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	outputs, err := listOutputs(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	gen.Outputs = outputs
	return gen, nil
}

// List returns generations newest first, with optional status/provider filters.
// Limit is clamped to [1, 100] and negative offsets are treated as zero.
func (r *GenerationRepositoryPG) List(ctx context.Context, filter domain.ListFilter) ([]domain.Generation, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)
	query := `
SELECT id, provider_id, provider_type, prompt, inputs, options,
       queue_request_id, status_url, response_url, cancel_url,
       status, logs, COALESCE(error_message, ''), created_at, updated_at, finished_at
FROM generations
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR provider_id = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;
`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), filter.ProviderID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, *gen)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range gens {
		outputs, err := listOutputs(ctx, r.pool, gens[i].ID)
		if err != nil {
			return nil, err
		}
		gens[i].Outputs = outputs
	}
	return gens, nil
}

// Delete removes a generation; outputs cascade at the database level.
func (r *GenerationRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM generations WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkInterrupted fails every non-terminal row. Called once at startup, before
// any execution task exists, to reconcile jobs orphaned by a previous process.
func (r *GenerationRepositoryPG) MarkInterrupted(ctx context.Context, message string) ([]string, error) {
	query := `
UPDATE generations
SET status = 'failed',
    error_message = $1,
    finished_at = NOW(),
    updated_at = NOW()
WHERE status IN ('queued', 'in_progress')
RETURNING id;
`
	rows, err := r.pool.Query(ctx, query, message)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanGeneration(row pgx.Row) (*domain.Generation, error) {
	var (
		gen       domain.Generation
		inputs    []byte
		options   []byte
		logs      []byte
		requestID *string
		statusURL *string
		respURL   *string
		cancelURL *string
	)
	if err := row.Scan(
		&gen.ID,
		&gen.ProviderID,
		&gen.ProviderType,
		&gen.Prompt,
		&inputs,
		&options,
		&requestID,
		&statusURL,
		&respURL,
		&cancelURL,
		&gen.Status,
		&logs,
		&gen.ErrorMessage,
		&gen.CreatedAt,
		&gen.UpdatedAt,
		&gen.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inputs, &gen.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}
	if err := json.Unmarshal(options, &gen.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(logs, &gen.Logs); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	gen.Queue = domain.QueueHandle{
		RequestID:   deref(requestID),
		StatusURL:   deref(statusURL),
		ResponseURL: deref(respURL),
		CancelURL:   deref(cancelURL),
	}
	return &gen, nil
}

// clampPage bounds the page parameters: limit falls back to 50, caps at
// maxListLimit, and negative offsets count as zero.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
