package worker

import "errors"

// Ошибки клиента воркера.
var (
	// ErrRequest — запрос не удалось отправить или прочитать ответ.
	ErrRequest = errors.New("worker request failed")

	// ErrRemoteStatus — воркер ответил не-2xx.
	ErrRemoteStatus = errors.New("worker returned error status")

	// ErrMalformedResponse — ответ воркера не является корректным JSON-объектом.
	ErrMalformedResponse = errors.New("malformed worker response")

	// ErrTimeout — истёк дедлайн запроса.
	ErrTimeout = errors.New("worker request timed out")
)
