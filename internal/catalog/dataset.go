package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// SchemaInput — схема и первичный ключ dataset.
type SchemaInput struct {
	Schema     []domain.Field
	PrimaryKey []string
}

// GoldInput — параметры нового gold dataset.
type GoldInput struct {
	Name string
	SchemaInput
}

// GoldPatch — частичное изменение gold dataset. Nil — поле не меняется.
type GoldPatch struct {
	Name       *string
	Schema     []domain.Field
	PrimaryKey *[]string
}

// ListDatasets возвращает datasets проекта. Пустой layer — все слои.
func (s *Service) ListDatasets(ctx context.Context, projectID uuid.UUID, layer domain.Layer) ([]domain.Dataset, error) {
	return s.datasets.List(ctx, projectID, layer)
}

// GetDataset возвращает dataset проекта.
func (s *Service) GetDataset(ctx context.Context, projectID, id uuid.UUID) (*domain.Dataset, error) {
	return s.datasets.GetByID(ctx, projectID, id)
}

// GetSilver возвращает silver dataset проекта.
func (s *Service) GetSilver(ctx context.Context, projectID uuid.UUID) (*domain.Dataset, error) {
	return s.datasets.GetByName(ctx, projectID, domain.LayerSilver, domain.SilverDatasetName)
}

// PutSilverSchema создаёт или заменяет схему silver dataset проекта.
// Silver требует хотя бы одну колонку первичного ключа.
func (s *Service) PutSilverSchema(ctx context.Context, projectID uuid.UUID, in SchemaInput) (*domain.Dataset, error) {
	if len(in.PrimaryKey) == 0 {
		return nil, domain.Invalid("primary_key", "silver requires at least one primary key column")
	}
	return s.upsertSilver(ctx, projectID, in.Schema, in.PrimaryKey)
}

// SeedSilverFromSource копирует схему bronze dataset источника в silver.
//
// Типы приводятся к каноническим, все колонки nullable. Первичный ключ
// существующего silver сохраняется для колонок, оставшихся в схеме.
func (s *Service) SeedSilverFromSource(ctx context.Context, projectID, sourceID uuid.UUID) (*domain.Dataset, error) {
	if _, err := s.sources.GetByID(ctx, projectID, sourceID); err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	bronze, err := s.datasets.GetBySource(ctx, projectID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get bronze dataset of source: %w", err)
	}

	fields := make([]domain.Field, len(bronze.Schema))
	for i, f := range bronze.Schema {
		fields[i] = domain.Field{Name: f.Name, Type: domain.CanonicalType(f.Type), Nullable: true}
	}

	pk := []string{}
	existing, err := lookup(s.GetSilver(ctx, projectID))
	if err != nil {
		return nil, fmt.Errorf("get silver dataset: %w", err)
	}
	if existing != nil {
		for _, col := range existing.PrimaryKey {
			if containsField(fields, col) {
				pk = append(pk, col)
			}
		}
	}

	silver, err := s.upsertSilver(ctx, projectID, fields, pk)
	if err != nil {
		return nil, err
	}
	s.logger.Info("silver seeded from bronze",
		zap.String("project_id", projectID.String()),
		zap.String("bronze", bronze.Name),
		zap.Int("fields", len(fields)),
	)
	return silver, nil
}

func (s *Service) upsertSilver(ctx context.Context, projectID uuid.UUID, fields []domain.Field, pk []string) (*domain.Dataset, error) {
	now := s.now()
	silver := &domain.Dataset{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Name:       domain.SilverDatasetName,
		Layer:      domain.LayerSilver,
		Schema:     fields,
		PrimaryKey: pk,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if silver.PrimaryKey == nil {
		silver.PrimaryKey = []string{}
	}
	if err := silver.Validate(); err != nil {
		return nil, err
	}
	if err := s.datasets.Upsert(ctx, silver); err != nil {
		return nil, fmt.Errorf("save silver dataset: %w", err)
	}
	return silver, nil
}

// CreateGold создаёт gold dataset.
func (s *Service) CreateGold(ctx context.Context, projectID uuid.UUID, in GoldInput) (*domain.Dataset, error) {
	now := s.now()
	gold := &domain.Dataset{
		ID:         uuid.New(),
		ProjectID:  projectID,
		Name:       strings.TrimSpace(in.Name),
		Layer:      domain.LayerGold,
		Schema:     in.Schema,
		PrimaryKey: in.PrimaryKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if gold.PrimaryKey == nil {
		gold.PrimaryKey = []string{}
	}
	if err := gold.Validate(); err != nil {
		return nil, err
	}
	if err := s.datasets.Create(ctx, gold); err != nil {
		return nil, fmt.Errorf("create gold dataset %q: %w", gold.Name, err)
	}
	return gold, nil
}

// UpdateGold частично изменяет gold dataset.
func (s *Service) UpdateGold(ctx context.Context, projectID, id uuid.UUID, patch GoldPatch) (*domain.Dataset, error) {
	gold, err := s.getGold(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		gold.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Schema != nil {
		gold.Schema = patch.Schema
	}
	if patch.PrimaryKey != nil {
		gold.PrimaryKey = *patch.PrimaryKey
	}
	gold.UpdatedAt = s.now()

	if err := gold.Validate(); err != nil {
		return nil, err
	}
	if err := s.datasets.Update(ctx, gold); err != nil {
		return nil, fmt.Errorf("update gold dataset: %w", err)
	}
	return gold, nil
}

// DeleteGold удаляет gold dataset и mappings, которые на него ссылаются.
func (s *Service) DeleteGold(ctx context.Context, projectID, id uuid.UUID) error {
	if _, err := s.getGold(ctx, projectID, id); err != nil {
		return err
	}
	if err := s.datasets.Delete(ctx, projectID, id); err != nil {
		return fmt.Errorf("delete gold dataset: %w", err)
	}
	return nil
}

// getGold возвращает dataset, только если он из слоя gold.
func (s *Service) getGold(ctx context.Context, projectID, id uuid.UUID) (*domain.Dataset, error) {
	d, err := s.datasets.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("get gold dataset: %w", err)
	}
	if d.Layer != domain.LayerGold {
		return nil, fmt.Errorf("dataset %s is %s: %w", id, d.Layer, repo.ErrNotFound)
	}
	return d, nil
}

func containsField(fields []domain.Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
