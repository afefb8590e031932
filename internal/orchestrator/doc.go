// Package orchestrator выполняет runs pipelines.
//
// Run выполняется синхронно в рамках запроса на запуск:
//
//	CreateRunning → silver stage → gold stage → Finish
//
// Перед созданием run mappings этапов перепроверяются по их текущим endpoints.
// Каждый успешный этап фиксируется сразу (метрики + образцы ошибок в одной
// транзакции), поэтому падение gold-этапа не теряет результат silver-этапа.
// Ошибка этапа (воркер, дедлайн, хранилище) переводит run в FAILED и никогда
// не выходит за пределы StartRun.
//
// Одновременно у pipeline может быть не более одного RUNNING run: это
// проверяет и сам оркестратор (в памяти), и хранилище (advisory lock).
package orchestrator
