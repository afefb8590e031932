package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// Runs — аналог repo.RunRepo.
type Runs struct{ s *Store }

func (r *Runs) CreateRunning(ctx context.Context, run *domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pipelines[run.PipelineID]; !ok {
		return notFound("pipeline_runs_pipeline_id_fkey")
	}
	for _, existing := range s.runs {
		if existing.PipelineID == run.PipelineID && existing.State == domain.RunStateRunning {
			return fmt.Errorf("pipeline %s already has a running run: %w", run.PipelineID, repo.ErrInvalidState)
		}
	}
	s.runs[run.ID] = copyRun(*run)
	s.track(run.ID)
	return nil
}

func (r *Runs) SaveStage(ctx context.Context, run *domain.Run, samples []domain.RunErrorSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveStageErr != nil {
		return s.saveStageErr
	}
	existing, ok := s.runs[run.ID]
	if !ok || existing.State != domain.RunStateRunning {
		return fmt.Errorf("run %s is not running: %w", run.ID, repo.ErrInvalidState)
	}

	stored := copyRun(*run)
	stored.State = existing.State
	stored.StateReason = existing.StateReason
	stored.FailureCode = existing.FailureCode
	stored.FailedStage = existing.FailedStage
	stored.FinishedAt = existing.FinishedAt
	s.runs[run.ID] = stored

	for _, sample := range samples {
		sample.SourceValues = slices.Clone(sample.SourceValues)
		sample.RowNo = ptrCopy(sample.RowNo)
		s.samples[run.ID] = append(s.samples[run.ID], sample)
	}
	return nil
}

func (r *Runs) Finish(_ context.Context, run *domain.Run) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finishErr != nil && s.finishFails != 0 {
		if s.finishFails > 0 {
			s.finishFails--
		}
		return s.finishErr
	}

	existing, ok := s.runs[run.ID]
	if !ok || existing.State != domain.RunStateRunning {
		return fmt.Errorf("run %s is not running: %w", run.ID, repo.ErrInvalidState)
	}
	existing.State = run.State
	existing.StateReason = run.StateReason
	existing.FailureCode = run.FailureCode
	existing.FailedStage = run.FailedStage
	existing.FinishedAt = ptrCopy(run.FinishedAt)
	s.runs[run.ID] = existing
	return nil
}

func (r *Runs) FailStale(_ context.Context, pipelineID *uuid.UUID, before time.Time, reason string) ([]uuid.UUID, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ids := []uuid.UUID{}
	for id, run := range s.runs {
		if run.State != domain.RunStateRunning || run.StartedAt == nil || !run.StartedAt.Before(before) {
			continue
		}
		if pipelineID != nil && run.PipelineID != *pipelineID {
			continue
		}
		run.State = domain.RunStateFailed
		run.FailureCode = domain.FailureInterrupted
		run.StateReason = reason
		run.FinishedAt = &now
		s.runs[id] = run
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Runs) GetByID(_ context.Context, projectID, id uuid.UUID) (*domain.Run, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok || run.ProjectID != projectID {
		return nil, repo.ErrNotFound
	}
	run = copyRun(run)
	return &run, nil
}

func (r *Runs) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	list := sorted(s, s.runs,
		func(run domain.Run) uuid.UUID { return run.ID },
		func(run domain.Run) bool {
			if run.ProjectID != filter.ProjectID {
				return false
			}
			if filter.PipelineID != nil && run.PipelineID != *filter.PipelineID {
				return false
			}
			return filter.State == "" || run.State == filter.State
		},
		func(a, b domain.Run) int { return b.CreatedAt.Compare(a.CreatedAt) },
	)
	list = page(list, filter.Page)
	for i := range list {
		list[i] = copyRun(list[i])
	}
	return list, nil
}

func (r *Runs) ListErrorSamples(_ context.Context, projectID, runID uuid.UUID, p repo.Page) ([]domain.RunErrorSample, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	all := []domain.RunErrorSample{}
	for _, sample := range s.samples[runID] {
		if sample.ProjectID == projectID {
			all = append(all, sample)
		}
	}
	slices.SortStableFunc(all, func(a, b domain.RunErrorSample) int {
		if c := cmp.Compare(stageRank(a.Stage), stageRank(b.Stage)); c != 0 {
			return c
		}
		switch {
		case a.RowNo == nil && b.RowNo == nil:
			return 0
		case a.RowNo == nil:
			return 1
		case b.RowNo == nil:
			return -1
		default:
			return cmp.Compare(*a.RowNo, *b.RowNo)
		}
	})
	return page(all, p), len(all), nil
}

// SampleCount возвращает число сохранённых образцов ошибок run по этапу.
func (r *Runs) SampleCount(runID uuid.UUID, stage domain.Stage) int {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sample := range s.samples[runID] {
		if sample.Stage == stage {
			n++
		}
	}
	return n
}

func stageRank(stage domain.Stage) int {
	if stage == domain.StageSilver {
		return 0
	}
	return 1
}

func page[T any](list []T, p repo.Page) []T {
	if p.Offset >= len(list) {
		return []T{}
	}
	list = list[max(p.Offset, 0):]
	return list[:min(p.EffectiveLimit(), len(list))]
}
