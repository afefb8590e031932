package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/worker"
)

// Исходы этапа для метрик.
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
)

// executeStage вызывает воркер для этапа и фиксирует результат.
// При успехе run содержит метрики этапа; при ошибке run не меняется.
func (o *Orchestrator) executeStage(
	ctx, persistCtx context.Context,
	logger *zap.Logger,
	project *domain.Project,
	run *domain.Run,
	p *stagePlan,
) error {
	logger = logger.With(zap.String("stage", string(p.Stage)))
	logger.Info("stage started", zap.Stringer("mapping_id", p.Mapping.ID))

	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := o.worker.Run(stageCtx, p.Job(project))
	elapsed := time.Since(start)

	if err != nil {
		code, outcome := classifyStageError(ctx, stageCtx, err)
		o.metrics.StageObserved(string(p.Stage), outcome, elapsed)
		return &stageError{code: code, err: fmt.Errorf("%s stage: %w", p.Stage, err)}
	}
	o.metrics.StageObserved(string(p.Stage), outcomeOK, elapsed)

	next := run.Clone()
	next.ApplyStage(res.StageResult(p.Stage))
	samples := errorSamples(run, p.Stage, res.ErrorSamples)

	if err := o.runs.SaveStage(persistCtx, next, samples); err != nil {
		return &stageError{code: domain.FailureInternal, err: fmt.Errorf("%s stage: save results: %w", p.Stage, err)}
	}
	*run = *next
	o.metrics.ErrorSamplesSaved(string(p.Stage), len(samples))

	logger.Info("stage finished",
		zap.Int64p("ori_rows", res.OriRows),
		zap.Int64p("dest_rows", res.DestRows),
		zap.Int64p("rejected_rows", res.RejectedRows),
		zap.Int("error_samples", len(samples)),
		zap.Duration("duration", elapsed),
	)
	return nil
}

// classifyStageError выбирает код FAILED для ошибки вызова воркера.
// Отмена запроса вызывающим — не вина воркера.
func classifyStageError(ctx, stageCtx context.Context, err error) (domain.FailureCode, string) {
	switch {
	case errors.Is(err, worker.ErrTimeout) || errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		return domain.FailureTimedOut, outcomeTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return domain.FailureCanceled, outcomeCanceled
	default:
		return domain.FailureWorkerError, outcomeError
	}
}

// stageContext накладывает дедлайн этапа, если он настроен.
func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stageTimeout)
}

// errorSamples превращает образцы воркера в записи run, не более
// domain.MaxErrorSamplesPerStage за этап.
func errorSamples(run *domain.Run, stage domain.Stage, in []worker.ErrorSample) []domain.RunErrorSample {
	n := min(len(in), domain.MaxErrorSamplesPerStage)
	now := time.Now().UTC()

	out := make([]domain.RunErrorSample, 0, n)
	for _, s := range in[:n] {
		out = append(out, domain.RunErrorSample{
			ID:           uuid.New(),
			ProjectID:    run.ProjectID,
			RunID:        run.ID,
			Stage:        stage,
			ReasonCode:   s.ReasonCode,
			Message:      s.Message,
			RowNo:        s.RowNo,
			SourceValues: s.SourceValues,
			CreatedAt:    now,
		})
	}
	return out
}
