// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через zap
//   - metrics.go — Prometheus метрики runs, этапов, воркера и API
//
// Сервис экспортирует метрики на /metrics endpoint.
package telemetry
