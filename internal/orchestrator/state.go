package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
	"github.com/shaiso/medallion/internal/worker"
)

// stagePlan — всё, что нужно для выполнения одного этапа.
// Разрешается целиком до создания run.
type stagePlan struct {
	Stage   domain.Stage
	Mapping *domain.Mapping
	From    *domain.Dataset
	To      *domain.Dataset

	// Source — источник bronze dataset (только silver-этап).
	Source *domain.Source
}

// Job строит описание задания для воркера.
func (p *stagePlan) Job(project *domain.Project) *worker.JobDescription {
	if p.Stage == domain.StageSilver {
		return worker.NewSilverJob(project, p.Source, p.From, p.To, p.Mapping)
	}
	return worker.NewGoldJob(project, p.From, p.To, p.Mapping)
}

// plan разрешает mappings, datasets и source каждого настроенного этапа
// и перепроверяет правило слоёв по текущим endpoints.
func (o *Orchestrator) plan(ctx context.Context, pipeline *domain.Pipeline) ([]*stagePlan, error) {
	stages := pipeline.ConfiguredStages()
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmptyPipeline,
			domain.Invalid("pipeline_id", "pipeline %q has no silver or gold mapping", pipeline.Name))
	}

	plans := make([]*stagePlan, 0, len(stages))
	for _, stage := range stages {
		p, err := o.planStage(ctx, pipeline.ProjectID, stage, *pipeline.MappingFor(stage))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (o *Orchestrator) planStage(ctx context.Context, projectID uuid.UUID, stage domain.Stage, mappingID uuid.UUID) (*stagePlan, error) {
	m, err := lookup(o.mappings.GetByID(ctx, projectID, mappingID))
	if err != nil {
		return nil, fmt.Errorf("get %s mapping: %w", stage, err)
	}

	p := &stagePlan{Stage: stage, Mapping: m}
	if m != nil {
		if p.From, err = lookup(o.datasets.GetByID(ctx, projectID, m.FromDatasetID)); err != nil {
			return nil, fmt.Errorf("get %s source dataset: %w", stage, err)
		}
		if p.To, err = lookup(o.datasets.GetByID(ctx, projectID, m.ToDatasetID)); err != nil {
			return nil, fmt.Errorf("get %s target dataset: %w", stage, err)
		}
	}

	if err := domain.ValidateStageMapping(stage, projectID, p.Mapping, p.From, p.To); err != nil {
		return nil, err
	}

	if stage == domain.StageSilver {
		if p.From.SourceID == nil {
			return nil, domain.Invalid(stage.Field(), "bronze dataset %q has no source", p.From.Name)
		}
		src, err := lookup(o.sources.GetByID(ctx, projectID, *p.From.SourceID))
		if err != nil {
			return nil, fmt.Errorf("get source: %w", err)
		}
		if src == nil {
			return nil, domain.Invalid(stage.Field(), "source of bronze dataset %q not found", p.From.Name)
		}
		p.Source = src
	}
	return p, nil
}

// lookup превращает ErrNotFound в nil без ошибки.
func lookup[T any](v *T, err error) (*T, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// acquire помечает pipeline как выполняющийся в этом процессе.
func (o *Orchestrator) acquire(pipelineID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.activeRuns[pipelineID]; busy {
		return false
	}
	o.activeRuns[pipelineID] = uuid.Nil
	return true
}

func (o *Orchestrator) bind(pipelineID, runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activeRuns[pipelineID] = runID
}

func (o *Orchestrator) release(pipelineID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, pipelineID)
}

// ActiveRunsCount возвращает количество runs, выполняющихся в этом процессе.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// ActiveRun возвращает ID выполняющегося run pipeline.
func (o *Orchestrator) ActiveRun(pipelineID uuid.UUID) (uuid.UUID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	runID, ok := o.activeRuns[pipelineID]
	return runID, ok && runID != uuid.Nil
}
