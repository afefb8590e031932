package domain

import (
	"errors"
	"fmt"
)

// ErrValidation — базовая ошибка для всех ошибок валидации.
// errors.Is(err, ErrValidation) срабатывает для любого *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError — ошибка валидации с указанием поля.
//
// Возвращается до любой записи в хранилище: слой, уникальность,
// отсутствующая ссылка на сущность.
type ValidationError struct {
	Field  string // поле запроса, вызвавшее ошибку (mapping_silver_id, schema, ...)
	Reason string // описание ошибки для пользователя
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Unwrap возвращает ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid создаёт ValidationError для поля.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// AsValidation извлекает *ValidationError из цепочки ошибок.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
