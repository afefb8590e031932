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

// MappingRepo — репозиторий для работы с mappings.
type MappingRepo struct {
	pool *pgxpool.Pool
}

// NewMappingRepo создаёт новый MappingRepo.
func NewMappingRepo(pool *pgxpool.Pool) *MappingRepo {
	return &MappingRepo{pool: pool}
}

const mappingColumns = `id, project_id, from_dataset_id, to_dataset_id, transforms, dq_rules, created_at, updated_at`

// Upsert создаёт mapping или обновляет transforms/dq_rules существующего
// с той же парой (project_id, from, to). ID и CreatedAt берутся из сохранённой записи.
func (r *MappingRepo) Upsert(ctx context.Context, m *domain.Mapping) error {
	transformsJSON, rulesJSON, err := marshalMapping(m)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mappings (id, project_id, from_dataset_id, to_dataset_id, transforms, dq_rules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT mappings_project_from_to_key DO UPDATE
		SET transforms = EXCLUDED.transforms,
		    dq_rules = EXCLUDED.dq_rules,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		m.ID,
		m.ProjectID,
		m.FromDatasetID,
		m.ToDatasetID,
		transformsJSON,
		rulesJSON,
		m.CreatedAt,
		m.UpdatedAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", mapError(err))
	}
	return nil
}

// GetByID возвращает mapping проекта по ID.
func (r *MappingRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE project_id = $1 AND id = $2`

	m, err := scanMapping(r.pool.QueryRow(ctx, query, projectID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mapping by id: %w", err)
	}
	return m, nil
}

// List возвращает mappings проекта.
func (r *MappingRepo) List(ctx context.Context, projectID uuid.UUID) ([]domain.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE project_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// Update обновляет endpoints, transforms и dq_rules mapping.
// Совпадение пары (from, to) с другим mapping — ErrAlreadyExists.
func (r *MappingRepo) Update(ctx context.Context, m *domain.Mapping) error {
	transformsJSON, rulesJSON, err := marshalMapping(m)
	if err != nil {
		return err
	}

	query := `
		UPDATE mappings
		SET from_dataset_id = $3, to_dataset_id = $4, transforms = $5, dq_rules = $6, updated_at = $7
		WHERE project_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		m.ProjectID,
		m.ID,
		m.FromDatasetID,
		m.ToDatasetID,
		transformsJSON,
		rulesJSON,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update mapping: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет mapping. Ссылки pipelines на него обнуляются.
func (r *MappingRepo) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM mappings WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalMapping(m *domain.Mapping) (transformsJSON, rulesJSON []byte, err error) {
	transformsJSON, err = json.Marshal(m.Transforms)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal transforms: %w", err)
	}
	rules := m.DQRules
	if rules == nil {
		rules = []domain.DQRule{}
	}
	rulesJSON, err = json.Marshal(rules)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal dq rules: %w", err)
	}
	return transformsJSON, rulesJSON, nil
}

func scanMapping(row pgx.Row) (*domain.Mapping, error) {
	var m domain.Mapping
	var transformsJSON, rulesJSON []byte

	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.FromDatasetID,
		&m.ToDatasetID,
		&transformsJSON,
		&rulesJSON,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(transformsJSON, &m.Transforms); err != nil {
		return nil, fmt.Errorf("unmarshal transforms: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &m.DQRules); err != nil {
		return nil, fmt.Errorf("unmarshal dq rules: %w", err)
	}
	return &m, nil
}
