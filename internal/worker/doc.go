// Package worker — клиент внешнего ETL-воркера.
//
// # Обзор
//
// Воркер — отдельный сервис, который выполняет одну трансформацию
// mapping целиком: читает строки источника, применяет transforms и
// dq_rules, пишет слой назначения и возвращает метрики. Пакет описывает
// только границу RPC с ним:
//
//	POST /infer_schema  {uri, source_config, limit} → {schema: {fields: [...]}}
//	POST /run           {project, datasets, mapping} → {logs, ori_rows, dest_rows, ...}
//
// # Client
//
// Оркестратор и каталог зависят от интерфейса Client, а не от HTTP:
//
//	type Client interface {
//	    InferSchema(ctx context.Context, req InferSchemaRequest) (*InferSchemaResult, error)
//	    Run(ctx context.Context, job *JobDescription) (*RunResult, error)
//	}
//
// HTTPClient — production-реализация. В тестах подставляется заглушка.
//
// # Описание задания
//
// JobDescription содержит пару datasets этапа. Каждый dataset — вариант
// закрытого типа DatasetDescriptor (BronzeDescriptor, SilverDescriptor,
// GoldDescriptor) и сериализуется как {"<Variant>": {...}}:
//
//	silver: [{"Bronze": {uri, source, inner}}, {"Silver": {name, primary_key, schema}}]
//	gold:   [{"Silver": {...}}, {"Gold": {...}}]
//
// # Ответ
//
// Все поля ответа /run необязательны: отсутствующие и null становятся
// nil или пустыми значениями. Ответ разбирается через gjson, dq_summary
// принимается и объектом, и списком {rule_code, violations, checked_rows}.
//
// # Ошибки
//
// Транспортная ошибка, не-2xx ответ и некорректный JSON возвращаются
// вызывающему (ErrRequest, ErrRemoteStatus, ErrMalformedResponse,
// ErrTimeout) и никогда не проглатываются.
package worker
