package repo

import "github.com/google/uuid"

// Ограничения страницы списков.
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page — параметры постраничной выборки.
type Page struct {
	Limit  int
	Offset int
}

// EffectiveLimit приводит Limit к [1, MaxPageLimit]. Ноль — DefaultPageLimit.
func (p Page) EffectiveLimit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return p.Limit
	}
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
