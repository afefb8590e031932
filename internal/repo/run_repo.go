package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/medallion/internal/domain"
)

// RunRepo — репозиторий для работы с pipeline_runs и run_error_samples.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `
	id, project_id, pipeline_id, state, state_reason, failure_code, failed_stage, completed_stages,
	rows_source, rows_source_rejected, rows_silver, rows_silver_rejected, rows_gold,
	bronze_snapshot, silver_snapshot, gold_snapshot, dq_summary, logs,
	started_at, finished_at, created_at`

// CreateRunning создаёт run в RUNNING.
//
// Под advisory-блокировкой pipeline проверяет, что другого RUNNING run нет.
// Если есть — ErrInvalidState.
func (r *RunRepo) CreateRunning(ctx context.Context, run *domain.Run) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, run.PipelineID.String()); err != nil {
		return fmt.Errorf("lock pipeline: %w", err)
	}

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pipeline_runs WHERE pipeline_id = $1 AND state = 'running')`,
		run.PipelineID,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("check running runs: %w", err)
	}
	if active {
		return fmt.Errorf("pipeline %s already has a running run: %w", run.PipelineID, ErrInvalidState)
	}

	completedJSON, dqJSON, logsJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipeline_runs (id, project_id, pipeline_id, state, completed_stages, dq_summary, logs, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		run.ID,
		run.ProjectID,
		run.PipelineID,
		run.State,
		completedJSON,
		dqJSON,
		logsJSON,
		run.StartedAt,
		run.CreatedAt,
	)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("pipeline %s already has a running run: %w", run.PipelineID, ErrInvalidState)
		}
		return fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// SaveStage фиксирует метрики завершённого этапа и его образцы ошибок
// в одной транзакции.
func (r *RunRepo) SaveStage(ctx context.Context, run *domain.Run, samples []domain.RunErrorSample) error {
	completedJSON, dqJSON, logsJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `
		UPDATE pipeline_runs
		SET completed_stages = $2,
		    rows_source = $3, rows_source_rejected = $4, rows_silver = $5,
		    rows_silver_rejected = $6, rows_gold = $7,
		    bronze_snapshot = $8, silver_snapshot = $9, gold_snapshot = $10,
		    dq_summary = $11, logs = $12
		WHERE id = $1 AND state = 'running'
	`
	result, err := tx.Exec(ctx, query,
		run.ID,
		completedJSON,
		run.RowsSource,
		run.RowsSourceRejected,
		run.RowsSilver,
		run.RowsSilverRejected,
		run.RowsGold,
		run.BronzeSnapshot,
		run.SilverSnapshot,
		run.GoldSnapshot,
		dqJSON,
		logsJSON,
	)
	if err != nil {
		return fmt.Errorf("update run stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s is not running: %w", run.ID, ErrInvalidState)
	}

	if len(samples) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"run_error_samples"},
			[]string{"id", "project_id", "run_id", "stage", "reason_code", "message", "row_no", "source_values", "created_at"},
			pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
				s := samples[i]
				var values any
				if len(s.SourceValues) > 0 {
					values = []byte(s.SourceValues)
				}
				return []any{
					s.ID, s.ProjectID, s.RunID, string(s.Stage), s.ReasonCode, s.Message, s.RowNo, values, s.CreatedAt,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert error samples: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run stage: %w", err)
	}
	return nil
}

// Finish переводит run в терминальное состояние.
// Метрики этапов не трогает: они уже сохранены SaveStage.
func (r *RunRepo) Finish(ctx context.Context, run *domain.Run) error {
	query := `
		UPDATE pipeline_runs
		SET state = $2, state_reason = $3, failure_code = $4, failed_stage = $5, finished_at = $6
		WHERE id = $1 AND state = 'running'
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.State,
		nullString(run.StateReason),
		nullString(string(run.FailureCode)),
		nullString(string(run.FailedStage)),
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s is not running: %w", run.ID, ErrInvalidState)
	}
	return nil
}

// FailStale переводит в FAILED (interrupted) runs в RUNNING, начатые раньше before.
// pipelineID != nil ограничивает выборку одним pipeline.
// Возвращает ID переведённых runs.
func (r *RunRepo) FailStale(ctx context.Context, pipelineID *uuid.UUID, before time.Time, reason string) ([]uuid.UUID, error) {
	query := `
		UPDATE pipeline_runs
		SET state = 'failed', state_reason = $3, failure_code = $4, finished_at = now()
		WHERE state = 'running'
		  AND started_at < $1
		  AND ($2::uuid IS NULL OR pipeline_id = $2)
		RETURNING id
	`
	rows, err := r.pool.Query(ctx, query, before, pipelineID, reason, string(domain.FailureInterrupted))
	if err != nil {
		return nil, fmt.Errorf("fail stale runs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("fail stale runs: %w", err)
	}
	return ids, nil
}

// GetByID возвращает run проекта по ID.
func (r *RunRepo) GetByID(ctx context.Context, projectID, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE project_id = $1 AND id = $2`

	run, err := scanRun(r.pool.QueryRow(ctx, query, projectID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// List возвращает runs проекта с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE project_id = $1
		  AND ($2::uuid IS NULL OR pipeline_id = $2)
		  AND ($3::text IS NULL OR state = $3::run_state)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		filter.ProjectID,
		nullUUID(filter.PipelineID),
		nullString(string(filter.State)),
		filter.EffectiveLimit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListErrorSamples возвращает страницу образцов ошибок run (по этапу, затем по номеру строки)
// и их общее количество.
func (r *RunRepo) ListErrorSamples(ctx context.Context, projectID, runID uuid.UUID, page Page) ([]domain.RunErrorSample, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM run_error_samples WHERE project_id = $1 AND run_id = $2`,
		projectID, runID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count error samples: %w", err)
	}

	query := `
		SELECT id, project_id, run_id, stage, reason_code, message, row_no, source_values, created_at
		FROM run_error_samples
		WHERE project_id = $1 AND run_id = $2
		ORDER BY CASE stage WHEN 'silver' THEN 0 ELSE 1 END, row_no NULLS LAST, id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, projectID, runID, page.EffectiveLimit(), page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list error samples: %w", err)
	}
	defer rows.Close()

	samples := []domain.RunErrorSample{}
	for rows.Next() {
		var s domain.RunErrorSample
		var values []byte
		if err := rows.Scan(
			&s.ID,
			&s.ProjectID,
			&s.RunID,
			&s.Stage,
			&s.ReasonCode,
			&s.Message,
			&s.RowNo,
			&values,
			&s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan error sample: %w", err)
		}
		if values != nil {
			s.SourceValues = json.RawMessage(values)
		}
		samples = append(samples, s)
	}
	return samples, total, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	ProjectID  uuid.UUID
	PipelineID *uuid.UUID
	State      domain.RunState
	Page
}

func marshalRun(run *domain.Run) (completedJSON, dqJSON, logsJSON []byte, err error) {
	completed := run.CompletedStages
	if completed == nil {
		completed = []domain.Stage{}
	}
	if completedJSON, err = json.Marshal(completed); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal completed stages: %w", err)
	}

	dq := run.DQSummary
	if dq == nil {
		dq = map[string]any{}
	}
	if dqJSON, err = json.Marshal(dq); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal dq summary: %w", err)
	}

	logs := run.Logs
	if logs == nil {
		logs = []string{}
	}
	if logsJSON, err = json.Marshal(logs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal logs: %w", err)
	}
	return completedJSON, dqJSON, logsJSON, nil
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var stateReason, failureCode, failedStage *string
	var completedJSON, dqJSON, logsJSON []byte

	err := row.Scan(
		&run.ID,
		&run.ProjectID,
		&run.PipelineID,
		&run.State,
		&stateReason,
		&failureCode,
		&failedStage,
		&completedJSON,
		&run.RowsSource,
		&run.RowsSourceRejected,
		&run.RowsSilver,
		&run.RowsSilverRejected,
		&run.RowsGold,
		&run.BronzeSnapshot,
		&run.SilverSnapshot,
		&run.GoldSnapshot,
		&dqJSON,
		&logsJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if stateReason != nil {
		run.StateReason = *stateReason
	}
	if failureCode != nil {
		run.FailureCode = domain.FailureCode(*failureCode)
	}
	if failedStage != nil {
		run.FailedStage = domain.Stage(*failedStage)
	}

	if err := json.Unmarshal(completedJSON, &run.CompletedStages); err != nil {
		return nil, fmt.Errorf("unmarshal completed stages: %w", err)
	}
	if err := json.Unmarshal(dqJSON, &run.DQSummary); err != nil {
		return nil, fmt.Errorf("unmarshal dq summary: %w", err)
	}
	if err := json.Unmarshal(logsJSON, &run.Logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}
	return &run, nil
}
