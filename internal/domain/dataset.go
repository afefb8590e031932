package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SilverDatasetName — имя канонического silver dataset проекта.
const SilverDatasetName = "silver"

// Field — колонка схемы.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Dataset — схема, привязанная к одному слою проекта.
//
// Инвариант: (ProjectID, Layer, Name) уникален.
// Bronze dataset не имеет первичного ключа (сырые данные не дедуплицируются),
// silver и gold объявляют его для детерминированной дедупликации.
type Dataset struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	// SourceID — источник bronze dataset. Nil для silver/gold.
	SourceID *uuid.UUID `json:"source_id,omitempty"`

	Name  string `json:"name"`
	Layer Layer  `json:"layer"`

	// Schema — упорядоченный список колонок.
	Schema []Field `json:"schema"`

	// PrimaryKey — колонки первичного ключа (подмножество Schema).
	PrimaryKey []string `json:"primary_key"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasColumn возвращает true, если схема содержит колонку.
func (d *Dataset) HasColumn(name string) bool {
	for _, f := range d.Schema {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Validate проверяет схему, слой и первичный ключ.
func (d *Dataset) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return Invalid("name", "name is required")
	}
	if !d.Layer.IsValid() {
		return Invalid("layer", "unknown layer %q", d.Layer)
	}
	if len(d.Schema) == 0 {
		return Invalid("schema", "schema must contain at least one field")
	}

	seen := make(map[string]bool, len(d.Schema))
	for i, f := range d.Schema {
		if strings.TrimSpace(f.Name) == "" {
			return Invalid("schema", "field #%d has empty name", i)
		}
		if strings.TrimSpace(f.Type) == "" {
			return Invalid("schema", "field %q has empty type", f.Name)
		}
		if seen[f.Name] {
			return Invalid("schema", "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}

	if d.Layer == LayerBronze {
		if len(d.PrimaryKey) > 0 {
			return Invalid("primary_key", "bronze datasets carry no primary key")
		}
		return nil
	}
	if d.SourceID != nil {
		return Invalid("source_id", "only bronze datasets reference a source")
	}

	pk := make(map[string]bool, len(d.PrimaryKey))
	for _, col := range d.PrimaryKey {
		if !seen[col] {
			return Invalid("primary_key", "column %q is not in the schema", col)
		}
		if pk[col] {
			return Invalid("primary_key", "duplicate column %q", col)
		}
		pk[col] = true
	}
	return nil
}

// CanonicalType приводит тип колонки к каноническому имени.
//
// Неизвестные типы приводятся к "str".
func CanonicalType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "utf8", "str", "string":
		return "str"
	case "f64", "double", "f32", "float", "float32", "float64":
		return "f64"
	case "i64", "int64", "i32", "int32":
		return "i64"
	case "bool", "boolean":
		return "bool"
	case "date", "date32":
		return "date"
	case "datetime", "timestamp":
		return "datetime"
	default:
		return "str"
	}
}
