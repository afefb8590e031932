package domain

// RunState — состояние выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//
// Run создаётся сразу в RUNNING; queued зарезервирован схемой, но не используется.
// Переход в терминальное состояние происходит ровно один раз.
type RunState string

const (
	// RunStateQueued — run создан, но ещё не начал выполняться.
	RunStateQueued RunState = "queued"

	// RunStateRunning — run в процессе выполнения.
	RunStateRunning RunState = "running"

	// RunStateSucceeded — все настроенные этапы завершены.
	RunStateSucceeded RunState = "succeeded"

	// RunStateFailed — один из этапов завершился ошибкой.
	RunStateFailed RunState = "failed"
)

// IsTerminal возвращает true, если состояние финальное (run неизменяем).
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed:
		return true
	default:
		return false
	}
}

// IsValid возвращает true для известных состояний.
func (s RunState) IsValid() bool {
	switch s {
	case RunStateQueued, RunStateRunning, RunStateSucceeded, RunStateFailed:
		return true
	default:
		return false
	}
}

// FailureCode — машиночитаемая причина FAILED.
type FailureCode string

const (
	// FailureWorkerError — воркер недоступен, вернул не-2xx или некорректный ответ.
	FailureWorkerError FailureCode = "worker_error"

	// FailureTimedOut — этап превысил дедлайн.
	FailureTimedOut FailureCode = "timed_out"

	// FailureInternal — ошибка хранилища или разрешения ссылок во время этапа.
	FailureInternal FailureCode = "internal"

	// FailureCanceled — вызывающий отменил запрос до завершения этапа.
	FailureCanceled FailureCode = "canceled"

	// FailureInterrupted — run остался в RUNNING без владельца
	// (процесс остановлен во время этапа или не записал итог).
	FailureInterrupted FailureCode = "interrupted"
)
