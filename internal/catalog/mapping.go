package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
)

// MappingInput — параметры mapping.
type MappingInput struct {
	FromDatasetID uuid.UUID
	ToDatasetID   uuid.UUID
	Transforms    domain.Transforms
	DQRules       []domain.DQRule
}

// MappingPatch — частичное изменение mapping. Nil — поле не меняется.
type MappingPatch struct {
	FromDatasetID *uuid.UUID
	ToDatasetID   *uuid.UUID
	Transforms    *domain.Transforms
	DQRules       *[]domain.DQRule
}

// UpsertMapping создаёт mapping или обновляет существующий для той же
// пары datasets.
func (s *Service) UpsertMapping(ctx context.Context, projectID uuid.UUID, in MappingInput) (*domain.Mapping, error) {
	now := s.now()
	m := &domain.Mapping{
		ID:            uuid.New(),
		ProjectID:     projectID,
		FromDatasetID: in.FromDatasetID,
		ToDatasetID:   in.ToDatasetID,
		Transforms:    in.Transforms,
		DQRules:       in.DQRules,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if m.DQRules == nil {
		m.DQRules = []domain.DQRule{}
	}
	if err := s.checkMapping(ctx, m); err != nil {
		return nil, err
	}
	if err := s.mappings.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("save mapping: %w", err)
	}

	s.logger.Info("mapping saved",
		zap.String("project_id", projectID.String()),
		zap.String("mapping_id", m.ID.String()),
	)
	return m, nil
}

// UpdateMapping частично изменяет mapping. Правило слоёв проверяется
// по итоговой паре datasets.
func (s *Service) UpdateMapping(ctx context.Context, projectID, id uuid.UUID, patch MappingPatch) (*domain.Mapping, error) {
	m, err := s.mappings.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("get mapping: %w", err)
	}

	if patch.FromDatasetID != nil {
		m.FromDatasetID = *patch.FromDatasetID
	}
	if patch.ToDatasetID != nil {
		m.ToDatasetID = *patch.ToDatasetID
	}
	if patch.Transforms != nil {
		m.Transforms = *patch.Transforms
	}
	if patch.DQRules != nil {
		m.DQRules = *patch.DQRules
	}
	m.UpdatedAt = s.now()

	if err := s.checkMapping(ctx, m); err != nil {
		return nil, err
	}
	if err := s.mappings.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update mapping: %w", err)
	}
	return m, nil
}

// checkMapping проверяет endpoints, затем transforms и dq_rules.
func (s *Service) checkMapping(ctx context.Context, m *domain.Mapping) error {
	from, err := lookup(s.datasets.GetByID(ctx, m.ProjectID, m.FromDatasetID))
	if err != nil {
		return fmt.Errorf("get from dataset: %w", err)
	}
	to, err := lookup(s.datasets.GetByID(ctx, m.ProjectID, m.ToDatasetID))
	if err != nil {
		return fmt.Errorf("get to dataset: %w", err)
	}
	if err := domain.ValidateMappingEndpoints(m.ProjectID, from, to); err != nil {
		return err
	}
	return m.Validate()
}

// GetMapping возвращает mapping проекта.
func (s *Service) GetMapping(ctx context.Context, projectID, id uuid.UUID) (*domain.Mapping, error) {
	return s.mappings.GetByID(ctx, projectID, id)
}

// ListMappings возвращает mappings проекта.
func (s *Service) ListMappings(ctx context.Context, projectID uuid.UUID) ([]domain.Mapping, error) {
	return s.mappings.List(ctx, projectID)
}

// DeleteMapping удаляет mapping. Pipelines, ссылавшиеся на него,
// теряют соответствующий этап.
func (s *Service) DeleteMapping(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.mappings.Delete(ctx, projectID, id); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	return nil
}
