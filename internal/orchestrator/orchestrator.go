package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/telemetry"
	"github.com/shaiso/medallion/internal/worker"
)

// Хранилища, которые читает оркестратор.
type (
	ProjectGetter interface {
		GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	}
	SourceGetter interface {
		GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Source, error)
	}
	DatasetGetter interface {
		GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Dataset, error)
	}
	MappingGetter interface {
		GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Mapping, error)
	}
	PipelineGetter interface {
		GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Pipeline, error)
	}
)

// RunStore сохраняет runs. Реализация: repo.RunRepo.
type RunStore interface {
	// CreateRunning создаёт run в RUNNING; repo.ErrInvalidState, если у pipeline
	// уже есть RUNNING run.
	CreateRunning(ctx context.Context, run *domain.Run) error

	// SaveStage атомарно фиксирует метрики этапа и его образцы ошибок.
	SaveStage(ctx context.Context, run *domain.Run, samples []domain.RunErrorSample) error

	// Finish записывает терминальное состояние.
	Finish(ctx context.Context, run *domain.Run) error

	// FailStale переводит в FAILED (interrupted) runs в RUNNING, начатые раньше before.
	FailStale(ctx context.Context, pipelineID *uuid.UUID, before time.Time, reason string) ([]uuid.UUID, error)
}

// EventPublisher публикует события жизненного цикла run. Реализация: mq.Publisher.
type EventPublisher interface {
	PublishRunEvent(ctx context.Context, run *domain.Run) error
}

// Orchestrator выполняет runs pipelines.
type Orchestrator struct {
	projects  ProjectGetter
	sources   SourceGetter
	datasets  DatasetGetter
	mappings  MappingGetter
	pipelines PipelineGetter
	runs      RunStore

	worker  worker.Client
	events  EventPublisher
	metrics *telemetry.Metrics

	stageTimeout time.Duration

	// activeRuns — pipelines с выполняющимся run (pipelineID → runID).
	activeRuns map[uuid.UUID]uuid.UUID
	// unfinished — runs, чьё терминальное состояние не удалось записать (pipelineID → run).
	unfinished map[uuid.UUID]*domain.Run
	mu         sync.RWMutex

	// startedAt — момент создания; RUNNING runs старше него остались от прошлого процесса.
	startedAt     time.Time
	finishBackoff time.Duration

	logger *zap.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Projects  ProjectGetter
	Sources   SourceGetter
	Datasets  DatasetGetter
	Mappings  MappingGetter
	Pipelines PipelineGetter
	Runs      RunStore

	Worker worker.Client

	// Events — необязательный публикатор событий run.
	Events EventPublisher

	// Metrics — необязательные метрики.
	Metrics *telemetry.Metrics

	// StageTimeout — дедлайн одного вызова воркера. 0 — без дедлайна.
	StageTimeout time.Duration

	Logger *zap.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		projects:      cfg.Projects,
		sources:       cfg.Sources,
		datasets:      cfg.Datasets,
		mappings:      cfg.Mappings,
		pipelines:     cfg.Pipelines,
		runs:          cfg.Runs,
		worker:        cfg.Worker,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
		stageTimeout:  max(cfg.StageTimeout, 0),
		activeRuns:    make(map[uuid.UUID]uuid.UUID),
		unfinished:    make(map[uuid.UUID]*domain.Run),
		startedAt:     time.Now().UTC(),
		finishBackoff: defaultFinishBackoff,
		logger:        logger,
	}
}

// StartRun запускает pipeline и выполняет его до терминального состояния.
//
// Ошибка возвращается только если run не удалось создать (pipeline не найден,
// пустой, mapping этапа нарушает правило слоёв, другой run уже выполняется)
// или не удалось записать терминальное состояние. Ошибки этапов отражаются
// в самом run: State=failed, StateReason, FailureCode, FailedStage.
func (o *Orchestrator) StartRun(ctx context.Context, projectID, pipelineID uuid.UUID) (*domain.Run, error) {
	pipeline, err := o.pipelines.GetByID(ctx, projectID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	plans, err := o.plan(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	if !o.acquire(pipeline.ID) {
		return nil, fmt.Errorf("%w: %s", ErrRunAlreadyActive, pipeline.ID)
	}
	defer o.release(pipeline.ID)

	pipelineLogger := telemetry.WithProjectID(o.logger, projectID.String())
	pipelineLogger = telemetry.WithPipelineID(pipelineLogger, pipeline.ID.String())

	if err := o.settleUnfinished(ctx, pipelineLogger, pipeline.ID); err != nil {
		return nil, err
	}

	run := domain.NewRun(projectID, pipeline.ID)
	if err := o.createRunning(ctx, pipelineLogger, run); err != nil {
		return nil, err
	}
	o.bind(pipeline.ID, run.ID)

	logger := telemetry.WithRunID(pipelineLogger, run.ID.String())
	logger.Info("run started", zap.String("pipeline", pipeline.Name), zap.Int("stages", len(plans)))
	o.publish(ctx, logger, run)

	// Терминальное состояние записывается, даже если вызывающий ушёл.
	persistCtx := context.WithoutCancel(ctx)

	for _, p := range plans {
		if err := o.executeStage(ctx, persistCtx, logger, project, run, p); err != nil {
			code := domain.FailureInternal
			var serr *stageError
			if errors.As(err, &serr) {
				code = serr.code
			}
			run.MarkFailed(p.Stage, code, err.Error())
			break
		}
	}

	if run.State == domain.RunStateRunning {
		run.MarkSucceeded()
	}

	if err := o.finish(persistCtx, logger, run); err != nil {
		o.markUnfinished(run)
		logger.Error("failed to finish run", zap.Error(err))
		return nil, fmt.Errorf("finish run: %w", err)
	}

	fields := []zap.Field{
		zap.String("state", string(run.State)),
		zap.Duration("duration", run.Duration()),
		zap.Strings("completed_stages", stageNames(run.CompletedStages)),
	}
	if run.State == domain.RunStateFailed {
		logger.Warn("run failed", append(fields,
			zap.String("failed_stage", string(run.FailedStage)),
			zap.String("failure_code", string(run.FailureCode)),
			zap.String("reason", run.StateReason),
		)...)
	} else {
		logger.Info("run succeeded", fields...)
	}

	o.metrics.RunFinished(string(run.State))
	o.publish(persistCtx, logger, run)

	return run, nil
}

// publish отправляет событие run. Ошибка только логируется.
func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, run *domain.Run) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishRunEvent(ctx, run); err != nil {
		logger.Warn("failed to publish run event", zap.String("state", string(run.State)), zap.Error(err))
	}
}

func stageNames(stages []domain.Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return names
}
