package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/worker"
)

// SourceInput — параметры source.
type SourceInput struct {
	Name   string
	URI    string
	Config domain.SourceConfig
}

func (s *Service) newSource(projectID uuid.UUID, in SourceInput) (*domain.Source, error) {
	now := s.now()
	src := &domain.Source{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      strings.TrimSpace(in.Name),
		URI:       strings.TrimSpace(in.URI),
		Config:    in.Config.WithDefaults(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return src, nil
}

// CreateSource регистрирует источник данных.
func (s *Service) CreateSource(ctx context.Context, projectID uuid.UUID, in SourceInput) (*domain.Source, error) {
	src, err := s.newSource(projectID, in)
	if err != nil {
		return nil, err
	}
	if err := s.sources.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("create source %q: %w", src.Name, err)
	}
	return src, nil
}

// UpdateSource заменяет имя, uri и config источника.
func (s *Service) UpdateSource(ctx context.Context, projectID, id uuid.UUID, in SourceInput) (*domain.Source, error) {
	existing, err := s.sources.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	src, err := s.newSource(projectID, in)
	if err != nil {
		return nil, err
	}
	src.ID = existing.ID
	src.CreatedAt = existing.CreatedAt

	if err := s.sources.Update(ctx, src); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}
	return src, nil
}

// GetSource возвращает источник проекта.
func (s *Service) GetSource(ctx context.Context, projectID, id uuid.UUID) (*domain.Source, error) {
	return s.sources.GetByID(ctx, projectID, id)
}

// ListSources возвращает источники проекта.
func (s *Service) ListSources(ctx context.Context, projectID uuid.UUID) ([]domain.Source, error) {
	return s.sources.List(ctx, projectID)
}

// DeleteSource удаляет источник вместе с его bronze dataset.
func (s *Service) DeleteSource(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.sources.Delete(ctx, projectID, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// InferBronzeSchema выводит схему источника воркером и сохраняет её
// в bronze dataset с именем источника.
//
// limit приводится к [1, 1000], 0 — 200. Если воркер не вернул схему,
// ничего не меняется и возвращается nil dataset.
func (s *Service) InferBronzeSchema(ctx context.Context, projectID, sourceID uuid.UUID, limit int) (*domain.Dataset, error) {
	src, err := s.sources.GetByID(ctx, projectID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	req := worker.NewInferSchemaRequest(src, limit)
	res, err := s.inferrer.InferSchema(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("infer schema of source %q: %w", src.Name, err)
	}

	logger := s.logger.With(zap.String("source", src.Name), zap.Int("limit", req.Limit))
	if res.Schema == nil || len(res.Schema.Fields) == 0 {
		logger.Info("worker returned no schema, bronze dataset unchanged")
		return nil, nil
	}

	now := s.now()
	bronze := &domain.Dataset{
		ID:         uuid.New(),
		ProjectID:  projectID,
		SourceID:   &src.ID,
		Name:       src.Name,
		Layer:      domain.LayerBronze,
		Schema:     res.Schema.Fields,
		PrimaryKey: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := bronze.Validate(); err != nil {
		return nil, err
	}
	if err := s.datasets.Upsert(ctx, bronze); err != nil {
		return nil, fmt.Errorf("save bronze dataset: %w", err)
	}

	logger.Info("bronze schema inferred", zap.Int("fields", len(bronze.Schema)))
	return bronze, nil
}
