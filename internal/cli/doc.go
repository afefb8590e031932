// Package cli реализует инструмент командной строки medallion.
//
// # Обзор
//
// CLI — клиентская утилита для medallion API. Ресурсы управляются
// через HTTP; внутренние пакеты сервиса не импортируются, за исключением
// internal/mq для команды events tail, которая читает события run
// напрямую из RabbitMQ.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для medallion API. Инкапсулирует запросы, разбор
// конвертов ответа ({"data": ...}, {"data": [...], "total": N},
// {"error": {...}}) и превращает ошибки API в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	projects, err := client.ListProjects(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: medallion run list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - project: list, create, show, delete
//   - source: list, create, infer
//   - dataset: list
//   - mapping: list, create
//   - pipeline: list, create, delete
//   - run: list, start, show, errors
//   - events: tail
//
// Каждая группа создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей clientFn, outputFn и projectFn — замыкания, которые
// читают PersistentFlags после их разбора.
package cli
