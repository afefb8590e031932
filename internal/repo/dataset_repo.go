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

// DatasetRepo — репозиторий для работы с datasets.
type DatasetRepo struct {
	pool *pgxpool.Pool
}

// NewDatasetRepo создаёт новый DatasetRepo.
func NewDatasetRepo(pool *pgxpool.Pool) *DatasetRepo {
	return &DatasetRepo{pool: pool}
}

const datasetColumns = `id, project_id, source_id, name, layer, schema, primary_key, created_at, updated_at`

// Create создаёт новый dataset.
func (r *DatasetRepo) Create(ctx context.Context, d *domain.Dataset) error {
	schemaJSON, pkJSON, err := marshalDataset(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO datasets (id, project_id, source_id, name, layer, schema, primary_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.ProjectID,
		nullUUID(d.SourceID),
		d.Name,
		d.Layer,
		schemaJSON,
		pkJSON,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", mapError(err))
	}
	return nil
}

// Upsert создаёт dataset или заменяет схему существующего с тем же
// (project_id, layer, name). ID и CreatedAt берутся из сохранённой записи.
func (r *DatasetRepo) Upsert(ctx context.Context, d *domain.Dataset) error {
	schemaJSON, pkJSON, err := marshalDataset(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO datasets (id, project_id, source_id, name, layer, schema, primary_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT datasets_project_layer_name_key DO UPDATE
		SET source_id = EXCLUDED.source_id,
		    schema = EXCLUDED.schema,
		    primary_key = EXCLUDED.primary_key,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query,
		d.ID,
		d.ProjectID,
		nullUUID(d.SourceID),
		d.Name,
		d.Layer,
		schemaJSON,
		pkJSON,
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert dataset: %w", mapError(err))
	}
	return nil
}

// GetByID возвращает dataset проекта по ID.
func (r *DatasetRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE project_id = $1 AND id = $2`
	return r.getOne(ctx, "get dataset by id", query, projectID, id)
}

// GetByName возвращает dataset проекта по слою и имени.
func (r *DatasetRepo) GetByName(ctx context.Context, projectID uuid.UUID, layer domain.Layer, name string) (*domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE project_id = $1 AND layer = $2 AND name = $3`
	return r.getOne(ctx, "get dataset by name", query, projectID, layer, name)
}

// GetBySource возвращает bronze dataset источника.
func (r *DatasetRepo) GetBySource(ctx context.Context, projectID, sourceID uuid.UUID) (*domain.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE project_id = $1 AND source_id = $2 AND layer = 'bronze'
		ORDER BY created_at
		LIMIT 1
	`
	return r.getOne(ctx, "get dataset by source", query, projectID, sourceID)
}

// List возвращает datasets проекта. Пустой layer — все слои.
func (r *DatasetRepo) List(ctx context.Context, projectID uuid.UUID, layer domain.Layer) ([]domain.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE project_id = $1
		  AND ($2::text IS NULL OR layer = $2::dataset_layer)
		ORDER BY layer, name
	`
	rows, err := r.pool.Query(ctx, query, projectID, nullString(string(layer)))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []domain.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

// Update обновляет имя, схему и первичный ключ dataset. Слой не меняется.
func (r *DatasetRepo) Update(ctx context.Context, d *domain.Dataset) error {
	schemaJSON, pkJSON, err := marshalDataset(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE datasets
		SET name = $3, schema = $4, primary_key = $5, updated_at = $6
		WHERE project_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		d.ProjectID,
		d.ID,
		d.Name,
		schemaJSON,
		pkJSON,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update dataset: %w", mapError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет dataset и (каскадно) mappings, которые на него ссылаются.
func (r *DatasetRepo) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM datasets WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DatasetRepo) getOne(ctx context.Context, op, query string, args ...any) (*domain.Dataset, error) {
	d, err := scanDataset(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func marshalDataset(d *domain.Dataset) (schemaJSON, pkJSON []byte, err error) {
	schemaJSON, err = json.Marshal(d.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal schema: %w", err)
	}
	pk := d.PrimaryKey
	if pk == nil {
		pk = []string{}
	}
	pkJSON, err = json.Marshal(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal primary key: %w", err)
	}
	return schemaJSON, pkJSON, nil
}

func scanDataset(row pgx.Row) (*domain.Dataset, error) {
	var d domain.Dataset
	var schemaJSON, pkJSON []byte

	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.SourceID,
		&d.Name,
		&d.Layer,
		&schemaJSON,
		&pkJSON,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(schemaJSON, &d.Schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := json.Unmarshal(pkJSON, &d.PrimaryKey); err != nil {
		return nil, fmt.Errorf("unmarshal primary key: %w", err)
	}
	return &d, nil
}
