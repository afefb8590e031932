package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
)

// PipelineInput — параметры нового pipeline.
type PipelineInput struct {
	Name            string
	SilverMappingID *uuid.UUID
	GoldMappingID   *uuid.UUID
}

// PipelinePatch — изменение pipeline. Nil — поле не меняется.
// ClearSilver/ClearGold снимают этап.
type PipelinePatch struct {
	Name            *string
	SilverMappingID *uuid.UUID
	GoldMappingID   *uuid.UUID
	ClearSilver     bool
	ClearGold       bool
}

// CreatePipeline создаёт pipeline. Каждый заданный этап проверяется
// по правилу слоёв до записи.
func (s *Service) CreatePipeline(ctx context.Context, projectID uuid.UUID, in PipelineInput) (*domain.Pipeline, error) {
	now := s.now()
	p := &domain.Pipeline{
		ID:              uuid.New(),
		ProjectID:       projectID,
		Name:            strings.TrimSpace(in.Name),
		SilverMappingID: in.SilverMappingID,
		GoldMappingID:   in.GoldMappingID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.checkPipeline(ctx, p); err != nil {
		return nil, err
	}
	if err := s.pipelines.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create pipeline %q: %w", p.Name, err)
	}
	return p, nil
}

// UpdatePipeline изменяет pipeline. Проверяются итоговые значения обоих
// этапов; при ошибке pipeline не меняется.
func (s *Service) UpdatePipeline(ctx context.Context, projectID, id uuid.UUID, patch PipelinePatch) (*domain.Pipeline, error) {
	p, err := s.pipelines.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}

	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	switch {
	case patch.ClearSilver:
		p.SilverMappingID = nil
	case patch.SilverMappingID != nil:
		p.SilverMappingID = patch.SilverMappingID
	}
	switch {
	case patch.ClearGold:
		p.GoldMappingID = nil
	case patch.GoldMappingID != nil:
		p.GoldMappingID = patch.GoldMappingID
	}
	p.UpdatedAt = s.now()

	if err := s.checkPipeline(ctx, p); err != nil {
		return nil, err
	}
	if err := s.pipelines.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update pipeline: %w", err)
	}
	return p, nil
}

func (s *Service) checkPipeline(ctx context.Context, p *domain.Pipeline) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for _, stage := range p.ConfiguredStages() {
		if err := s.checkStage(ctx, p.ProjectID, stage, *p.MappingFor(stage)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkStage(ctx context.Context, projectID uuid.UUID, stage domain.Stage, mappingID uuid.UUID) error {
	m, err := lookup(s.mappings.GetByID(ctx, projectID, mappingID))
	if err != nil {
		return fmt.Errorf("get %s mapping: %w", stage, err)
	}
	var from, to *domain.Dataset
	if m != nil {
		if from, err = lookup(s.datasets.GetByID(ctx, projectID, m.FromDatasetID)); err != nil {
			return fmt.Errorf("get %s mapping source dataset: %w", stage, err)
		}
		if to, err = lookup(s.datasets.GetByID(ctx, projectID, m.ToDatasetID)); err != nil {
			return fmt.Errorf("get %s mapping target dataset: %w", stage, err)
		}
	}
	return domain.ValidateStageMapping(stage, projectID, m, from, to)
}

// GetPipeline возвращает pipeline проекта.
func (s *Service) GetPipeline(ctx context.Context, projectID, id uuid.UUID) (*domain.Pipeline, error) {
	return s.pipelines.GetByID(ctx, projectID, id)
}

// ListPipelines возвращает pipelines проекта.
func (s *Service) ListPipelines(ctx context.Context, projectID uuid.UUID) ([]domain.Pipeline, error) {
	return s.pipelines.List(ctx, projectID)
}

// DeletePipeline удаляет pipeline вместе с историей его runs.
func (s *Service) DeletePipeline(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.pipelines.Delete(ctx, projectID, id); err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	return nil
}
