package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// GetRun возвращает run проекта.
func (s *Service) GetRun(ctx context.Context, projectID, id uuid.UUID) (*domain.Run, error) {
	return s.runs.GetByID(ctx, projectID, id)
}

// ListRuns возвращает runs по фильтру, новые первыми.
func (s *Service) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	return s.runs.List(ctx, filter)
}

// ListRunErrors возвращает страницу error samples run и их общее число.
func (s *Service) ListRunErrors(ctx context.Context, projectID, runID uuid.UUID, page repo.Page) ([]domain.RunErrorSample, int, error) {
	if _, err := s.runs.GetByID(ctx, projectID, runID); err != nil {
		return nil, 0, fmt.Errorf("get run: %w", err)
	}
	return s.runs.ListErrorSamples(ctx, projectID, runID, page)
}
