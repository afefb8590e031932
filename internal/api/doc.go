// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (catalog, orchestrator, metrics, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (recovery, logging, metrics)
//   - response.go         — унифицированные JSON-ответы и отображение ошибок в статусы
//   - request.go          — разбор и валидация тел запросов (validator/v10)
//   - dto.go              — Data Transfer Objects (request/response)
//   - project_handler.go  — /projects
//   - source_handler.go   — /projects/{project}/sources
//   - dataset_handler.go  — /projects/{project}/datasets, /silver, /gold
//   - mapping_handler.go  — /projects/{project}/mappings
//   - pipeline_handler.go — /projects/{project}/pipelines
//   - run_handler.go      — /projects/{project}/runs
//
// {project} в пути принимает ID или slug проекта.
package api
