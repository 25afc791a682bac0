package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KianaMei/genqueue/internal/domain"
)

// OutputRepositoryPG implements domain.OutputRepository using PostgreSQL.
type OutputRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewOutputRepository constructs a new output repository instance.
func NewOutputRepository(pool *pgxpool.Pool) *OutputRepositoryPG {
	return &OutputRepositoryPG{pool: pool}
}

// CreateBatch inserts every row in one transaction so observers never see a
// partially written result set.
func (r *OutputRepositoryPG) CreateBatch(ctx context.Context, outputs []domain.Output) error {
	if len(outputs) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
INSERT INTO outputs (id, generation_id, output_index, remote_url, local_path, content_type, width, height, file_size)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	for _, out := range outputs {
		if _, err := tx.Exec(ctx, query,
			out.ID, out.GenerationID, out.Index, out.RemoteURL, out.LocalPath, out.ContentType, out.Width, out.Height, out.FileSize,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListByGenerationID returns all outputs of the generation in display order.
func (r *OutputRepositoryPG) ListByGenerationID(ctx context.Context, generationID string) ([]domain.Output, error) {
	return listOutputs(ctx, r.pool, generationID)
}

// GetByIndex fetches a single output by its position within the generation.
func (r *OutputRepositoryPG) GetByIndex(ctx context.Context, generationID string, index int) (*domain.Output, error) {
	query := `
SELECT id, generation_id, output_index, remote_url, local_path, content_type, width, height, file_size, created_at
FROM outputs
WHERE generation_id = $1 AND output_index = $2;
`
	row := r.pool.QueryRow(ctx, query, generationID, index)
	var out domain.Output
	if err := row.Scan(
		&out.ID, &out.GenerationID, &out.Index, &out.RemoteURL,
		&out.LocalPath, &out.ContentType, &out.Width, &out.Height, &out.FileSize, &out.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// DeleteByIndex removes one output row.
func (r *OutputRepositoryPG) DeleteByIndex(ctx context.Context, generationID string, index int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outputs WHERE generation_id = $1 AND output_index = $2;`,
		generationID, index,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func listOutputs(ctx context.Context, pool *pgxpool.Pool, generationID string) ([]domain.Output, error) {
	rows, err := pool.Query(ctx, `
SELECT id, generation_id, output_index, remote_url, local_path, content_type, width, height, file_size, created_at
FROM outputs
WHERE generation_id = $1
ORDER BY output_index ASC;
`, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []domain.Output
	for rows.Next() {
		var out domain.Output
		if err := rows.Scan(
			&out.ID, &out.GenerationID, &out.Index, &out.RemoteURL,
			&out.LocalPath, &out.ContentType, &out.Width, &out.Height, &out.FileSize, &out.CreatedAt,
		); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}
