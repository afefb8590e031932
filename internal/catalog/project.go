package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/telemetry"
)

// ProjectInput — параметры нового проекта.
type ProjectInput struct {
	Slug         string
	WarehouseURI string // пусто — DefaultWarehouseURI
	Namespace    string
}

// CreateProject создаёт проект.
func (s *Service) CreateProject(ctx context.Context, in ProjectInput) (*domain.Project, error) {
	warehouse := strings.TrimSpace(in.WarehouseURI)
	if warehouse == "" {
		warehouse = s.defaultWarehouseURI
	}

	p := &domain.Project{
		ID:           uuid.New(),
		Slug:         strings.TrimSpace(in.Slug),
		WarehouseURI: warehouse,
		Namespace:    strings.TrimSpace(in.Namespace),
		CreatedAt:    s.now(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(p.Slug); err == nil {
		return nil, domain.Invalid("slug", "slug must not be a UUID")
	}

	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project %q: %w", p.Slug, err)
	}

	s.logger.Info("project created",
		zap.String("project_id", p.ID.String()),
		zap.String("slug", p.Slug),
		zap.String("warehouse_uri", telemetry.RedactURL(p.WarehouseURI)),
	)
	return p, nil
}

// ResolveProject находит проект по ID или slug.
func (s *Service) ResolveProject(ctx context.Context, ref string) (*domain.Project, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.projects.GetByID(ctx, id)
	}
	return s.projects.GetBySlug(ctx, ref)
}

// ListProjects возвращает все проекты, новые первыми.
func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.projects.List(ctx)
}

// DeleteProject удаляет проект со всем содержимым.
func (s *Service) DeleteProject(ctx context.Context, id uuid.UUID) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.logger.Info("project deleted", zap.String("project_id", id.String()))
	return nil
}
