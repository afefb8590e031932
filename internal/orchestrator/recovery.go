package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

const (
	finishAttempts       = 3
	defaultFinishBackoff = 200 * time.Millisecond

	reasonRestarted = "interrupted: service restarted while the run was in progress"
	reasonOrphaned  = "interrupted: run was left running by a previous service instance"
)

// Reconcile завершает runs, оставшиеся в RUNNING от предыдущего процесса.
// Вызывается при старте сервиса до приёма запросов.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	ids, err := o.runs.FailStale(ctx, nil, o.startedAt, reasonRestarted)
	if err != nil {
		return 0, fmt.Errorf("reconcile runs: %w", err)
	}
	for _, id := range ids {
		o.logger.Warn("run interrupted", zap.Stringer("run_id", id))
	}
	o.metrics.RunsInterrupted(len(ids))
	return len(ids), nil
}

// createRunning создаёт run. Если pipeline занят run'ом прошлого процесса,
// тот переводится в FAILED (interrupted) и создание повторяется один раз.
func (o *Orchestrator) createRunning(ctx context.Context, logger *zap.Logger, run *domain.Run) error {
	err := o.runs.CreateRunning(ctx, run)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrInvalidState) {
		return fmt.Errorf("create run: %w", err)
	}

	ids, ferr := o.runs.FailStale(ctx, &run.PipelineID, o.startedAt, reasonOrphaned)
	if ferr != nil {
		return fmt.Errorf("reclaim pipeline: %w", ferr)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", ErrRunAlreadyActive, run.PipelineID)
	}
	for _, id := range ids {
		logger.Warn("run interrupted", zap.Stringer("stale_run_id", id))
	}
	o.metrics.RunsInterrupted(len(ids))

	if err := o.runs.CreateRunning(ctx, run); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return fmt.Errorf("%w: %s", ErrRunAlreadyActive, run.PipelineID)
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// finish записывает терминальное состояние, повторяя попытку при сбое хранилища.
func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, run *domain.Run) error {
	backoff := o.finishBackoff

	var err error
	for attempt := 1; attempt <= finishAttempts; attempt++ {
		err = o.runs.Finish(ctx, run)
		if err == nil || errors.Is(err, repo.ErrInvalidState) || attempt == finishAttempts {
			break
		}
		logger.Warn("finish run failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

// markUnfinished запоминает run, чей итог не записан; следующий StartRun
// этого pipeline допишет его.
func (o *Orchestrator) markUnfinished(run *domain.Run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unfinished[run.PipelineID] = run.Clone()
}

// settleUnfinished дописывает итог run, который не удалось записать раньше.
// Если run уже не в RUNNING (например, после Reconcile), запись отбрасывается.
func (o *Orchestrator) settleUnfinished(ctx context.Context, logger *zap.Logger, pipelineID uuid.UUID) error {
	o.mu.RLock()
	run, ok := o.unfinished[pipelineID]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	err := o.runs.Finish(context.WithoutCancel(ctx), run)
	if err != nil && !errors.Is(err, repo.ErrInvalidState) {
		return fmt.Errorf("finish previous run %s: %w", run.ID, err)
	}

	o.mu.Lock()
	delete(o.unfinished, pipelineID)
	o.mu.Unlock()

	if err == nil {
		logger.Info("previous run finished", zap.Stringer("stale_run_id", run.ID), zap.String("state", string(run.State)))
		o.metrics.RunFinished(string(run.State))
	}
	return nil
}
