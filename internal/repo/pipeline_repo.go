package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/medallion/internal/domain"
)

// PipelineRepo — репозиторий для работы с pipelines.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

const pipelineColumns = `id, project_id, name, mapping_silver_id, mapping_gold_id, created_at, updated_at`

// Create создаёт новый pipeline.
func (r *PipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	query := `
		INSERT INTO pipelines (id, project_id, name, mapping_silver_id, mapping_gold_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.ProjectID,
		p.Name,
		nullUUID(p.SilverMappingID),
		nullUUID(p.GoldMappingID),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", mapError(err))
	}
	return nil
}

// GetByID возвращает pipeline проекта по ID.
func (r *PipelineRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE project_id = $1 AND id = $2`

	p, err := scanPipeline(r.pool.QueryRow(ctx, query, projectID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline by id: %w", err)
	}
	return p, nil
}

// List возвращает pipelines проекта.
func (r *PipelineRepo) List(ctx context.Context, projectID uuid.UUID) ([]domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE project_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	pipelines := []domain.Pipeline{}
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// Update обновляет имя и mappings этапов pipeline.
func (r *PipelineRepo) Update(ctx context.Context, p *domain.Pipeline) error {
	query := `
		UPDATE pipelines
		SET name = $3, mapping_silver_id = $4, mapping_gold_id = $5, updated_at = $6
		WHERE project_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		p.ProjectID,
		p.ID,
		p.Name,
		nullUUID(p.SilverMappingID),
		nullUUID(p.GoldMappingID),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет pipeline и (каскадно) его runs.
func (r *PipelineRepo) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pipelines WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.Name,
		&p.SilverMappingID,
		&p.GoldMappingID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
