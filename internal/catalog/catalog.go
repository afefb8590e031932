// Package catalog — операции над сущностями проекта.
//
// Catalog проверяет инварианты до любой записи: правило слоёв для mappings
// и этапов pipeline, схемы datasets, уникальность (через хранилище).
// Нарушение — *domain.ValidationError; отсутствующая сущность — repo.ErrNotFound.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
	"github.com/shaiso/medallion/internal/worker"
)

// ProjectStore — хранилище projects. Реализация: repo.ProjectRepo.
type ProjectStore interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Project, error)
	List(ctx context.Context) ([]domain.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SourceStore — хранилище sources. Реализация: repo.SourceRepo.
type SourceStore interface {
	Create(ctx context.Context, s *domain.Source) error
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Source, error)
	List(ctx context.Context, projectID uuid.UUID) ([]domain.Source, error)
	Update(ctx context.Context, s *domain.Source) error
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// DatasetStore — хранилище datasets. Реализация: repo.DatasetRepo.
type DatasetStore interface {
	Create(ctx context.Context, d *domain.Dataset) error
	Upsert(ctx context.Context, d *domain.Dataset) error
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Dataset, error)
	GetByName(ctx context.Context, projectID uuid.UUID, layer domain.Layer, name string) (*domain.Dataset, error)
	GetBySource(ctx context.Context, projectID, sourceID uuid.UUID) (*domain.Dataset, error)
	List(ctx context.Context, projectID uuid.UUID, layer domain.Layer) ([]domain.Dataset, error)
	Update(ctx context.Context, d *domain.Dataset) error
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// MappingStore — хранилище mappings. Реализация: repo.MappingRepo.
type MappingStore interface {
	Upsert(ctx context.Context, m *domain.Mapping) error
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Mapping, error)
	List(ctx context.Context, projectID uuid.UUID) ([]domain.Mapping, error)
	Update(ctx context.Context, m *domain.Mapping) error
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// PipelineStore — хранилище pipelines. Реализация: repo.PipelineRepo.
type PipelineStore interface {
	Create(ctx context.Context, p *domain.Pipeline) error
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Pipeline, error)
	List(ctx context.Context, projectID uuid.UUID) ([]domain.Pipeline, error)
	Update(ctx context.Context, p *domain.Pipeline) error
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// RunReader читает runs. Реализация: repo.RunRepo.
type RunReader interface {
	GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	ListErrorSamples(ctx context.Context, projectID, runID uuid.UUID, page repo.Page) ([]domain.RunErrorSample, int, error)
}

// SchemaInferrer выводит схему источника. Реализация: worker.Client.
type SchemaInferrer interface {
	InferSchema(ctx context.Context, req worker.InferSchemaRequest) (*worker.InferSchemaResult, error)
}

// Config — зависимости Service.
type Config struct {
	Projects  ProjectStore
	Sources   SourceStore
	Datasets  DatasetStore
	Mappings  MappingStore
	Pipelines PipelineStore
	Runs      RunReader
	Inferrer  SchemaInferrer

	// DefaultWarehouseURI — warehouse проектов, созданных без warehouse_uri.
	DefaultWarehouseURI string

	Logger *zap.Logger
}

// Service — операции над сущностями проекта.
type Service struct {
	projects  ProjectStore
	sources   SourceStore
	datasets  DatasetStore
	mappings  MappingStore
	pipelines PipelineStore
	runs      RunReader
	inferrer  SchemaInferrer

	defaultWarehouseURI string
	logger              *zap.Logger
	now                 func() time.Time
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		projects:            cfg.Projects,
		sources:             cfg.Sources,
		datasets:            cfg.Datasets,
		mappings:            cfg.Mappings,
		pipelines:           cfg.Pipelines,
		runs:                cfg.Runs,
		inferrer:            cfg.Inferrer,
		defaultWarehouseURI: cfg.DefaultWarehouseURI,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// lookup превращает ErrNotFound в nil без ошибки.
func lookup[T any](v *T, err error) (*T, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
