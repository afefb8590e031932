// Package mq публикует события жизненного цикла run в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — exchange medallion.runs (topic) и очередь runs.events
//   - publisher.go  — публикация событий run.started, run.succeeded, run.failed
//   - consumer.go   — чтение событий (medallion events tail)
//
// Публикация best-effort: ошибка логируется вызывающим и не меняет исход run.
package mq
