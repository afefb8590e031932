package domain

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// MaxErrorSamplesPerStage — максимум образцов ошибок, сохраняемых за один этап.
const MaxErrorSamplesPerStage = 1000

// Run — одна попытка выполнения pipeline.
//
// Run создаётся в RUNNING при запуске. Каждый успешный этап фиксирует свои
// метрики сразу, поэтому падение gold-этапа не теряет метрики silver-этапа.
// После SUCCEEDED/FAILED run не меняется.
type Run struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	PipelineID uuid.UUID `json:"pipeline_id"`

	State RunState `json:"state"`

	// StateReason — текст ошибки для FAILED.
	StateReason string `json:"state_reason,omitempty"`

	// FailureCode — машиночитаемая причина FAILED.
	FailureCode FailureCode `json:"failure_code,omitempty"`

	// FailedStage — этап, на котором run упал.
	FailedStage Stage `json:"failed_stage,omitempty"`

	// CompletedStages — успешно завершённые этапы в порядке выполнения.
	CompletedStages []Stage `json:"completed_stages"`

	// Счётчики строк. Nil — этап не выполнялся или воркер не вернул значение.
	RowsSource         *int64 `json:"rows_source"`
	RowsSourceRejected *int64 `json:"rows_source_rejected"`
	RowsSilver         *int64 `json:"rows_silver"`
	RowsSilverRejected *int64 `json:"rows_silver_rejected"`
	RowsGold           *int64 `json:"rows_gold"`

	// Идентификаторы снапшотов слоёв, возвращённые воркером.
	BronzeSnapshot *string `json:"bronze_snapshot"`
	SilverSnapshot *string `json:"silver_snapshot"`
	GoldSnapshot   *string `json:"gold_snapshot"`

	// DQSummary — объединение dq_summary всех этапов (поздний этап побеждает при коллизии ключей).
	DQSummary map[string]any `json:"dq_summary"`

	// Logs — сообщения воркера всех этапов по порядку.
	Logs []string `json:"logs"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StageResult — результат одного этапа, полученный от воркера.
type StageResult struct {
	Stage        Stage
	OriRows      *int64
	DestRows     *int64
	RejectedRows *int64
	Snapshot     *string
	DQSummary    map[string]any
	Logs         []string
}

// NewRun создаёт run в состоянии RUNNING.
func NewRun(projectID, pipelineID uuid.UUID) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:              uuid.New(),
		ProjectID:       projectID,
		PipelineID:      pipelineID,
		State:           RunStateRunning,
		CompletedStages: []Stage{},
		DQSummary:       map[string]any{},
		Logs:            []string{},
		StartedAt:       &now,
		CreatedAt:       now,
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом состоянии).
func (r *Run) IsFinished() bool {
	return r.State.IsTerminal()
}

// HasCompleted возвращает true, если этап успешно завершён.
func (r *Run) HasCompleted(stage Stage) bool {
	return slices.Contains(r.CompletedStages, stage)
}

// ApplyStage переносит метрики этапа в run.
func (r *Run) ApplyStage(res StageResult) {
	switch res.Stage {
	case StageSilver:
		r.RowsSource = res.OriRows
		r.RowsSilver = res.DestRows
		r.RowsSourceRejected = res.RejectedRows
		r.SilverSnapshot = res.Snapshot
	case StageGold:
		r.RowsGold = res.DestRows
		r.RowsSilverRejected = res.RejectedRows
		r.GoldSnapshot = res.Snapshot
	}

	if r.DQSummary == nil {
		r.DQSummary = map[string]any{}
	}
	maps.Copy(r.DQSummary, res.DQSummary)
	r.Logs = append(r.Logs, res.Logs...)
	r.CompletedStages = append(r.CompletedStages, res.Stage)
}

// Clone возвращает глубокую копию run.
func (r *Run) Clone() *Run {
	c := *r
	c.CompletedStages = slices.Clone(r.CompletedStages)
	c.Logs = slices.Clone(r.Logs)
	c.DQSummary = maps.Clone(r.DQSummary)
	return &c
}

// MarkSucceeded переводит run в SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now().UTC()
	r.State = RunStateSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в FAILED с причиной.
func (r *Run) MarkFailed(stage Stage, code FailureCode, reason string) {
	now := time.Now().UTC()
	r.State = RunStateFailed
	r.FailedStage = stage
	r.FailureCode = code
	r.StateReason = reason
	r.FinishedAt = &now
}

// RunErrorSample — образец отклонённой строки, возвращённый воркером.
//
// Только для диагностики: оркестратор его не читает.
type RunErrorSample struct {
	ID           uuid.UUID       `json:"id"`
	ProjectID    uuid.UUID       `json:"project_id"`
	RunID        uuid.UUID       `json:"run_id"`
	Stage        Stage           `json:"stage"`
	ReasonCode   string          `json:"reason_code"`
	Message      string          `json:"message"`
	RowNo        *int64          `json:"row_no,omitempty"`
	SourceValues json.RawMessage `json:"source_values,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
