package orchestrator

import (
	"errors"

	"github.com/shaiso/medallion/internal/domain"
)

// Ошибки оркестратора.
var (
	// ErrRunAlreadyActive — у pipeline уже есть run в RUNNING.
	ErrRunAlreadyActive = errors.New("pipeline already has a running run")

	// ErrEmptyPipeline — у pipeline не настроен ни один этап.
	// Всегда приходит вместе с *domain.ValidationError на поле pipeline_id.
	ErrEmptyPipeline = errors.New("pipeline has no configured stages")
)

// stageError — ошибка выполнения этапа с кодом причины FAILED.
type stageError struct {
	code domain.FailureCode
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }
