package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/medallion/internal/domain"
)

// SourceRepo — репозиторий для работы с sources.
type SourceRepo struct {
	pool *pgxpool.Pool
}

// NewSourceRepo создаёт новый SourceRepo.
func NewSourceRepo(pool *pgxpool.Pool) *SourceRepo {
	return &SourceRepo{pool: pool}
}

const sourceColumns = `id, project_id, name, uri, config, created_at, updated_at`

// Create создаёт новый source.
func (r *SourceRepo) Create(ctx context.Context, s *domain.Source) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO sources (id, project_id, name, uri, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.ProjectID,
		s.Name,
		s.URI,
		configJSON,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", mapError(err))
	}
	return nil
}

// GetByID возвращает source проекта по ID.
func (r *SourceRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE project_id = $1 AND id = $2`

	s, err := scanSource(r.pool.QueryRow(ctx, query, projectID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source by id: %w", err)
	}
	return s, nil
}

// List возвращает sources проекта.
func (r *SourceRepo) List(ctx context.Context, projectID uuid.UUID) ([]domain.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources WHERE project_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.Source{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// Update обновляет имя, uri и config source.
func (r *SourceRepo) Update(ctx context.Context, s *domain.Source) error {
	configJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		UPDATE sources
		SET name = $3, uri = $4, config = $5, updated_at = $6
		WHERE project_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		s.ProjectID,
		s.ID,
		s.Name,
		s.URI,
		configJSON,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет source и (каскадно) его bronze dataset.
func (r *SourceRepo) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sources WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (*domain.Source, error) {
	var s domain.Source
	var configJSON []byte

	err := row.Scan(
		&s.ID,
		&s.ProjectID,
		&s.Name,
		&s.URI,
		&configJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return &s, nil
}
