package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mapping — контракт трансформации между двумя datasets одного проекта.
//
// Инварианты:
//   - (From.Layer, To.Layer) ∈ {(bronze, silver), (silver, gold)}
//   - оба dataset принадлежат проекту mapping
//   - не более одного mapping на (ProjectID, FromDatasetID, ToDatasetID):
//     повторное создание обновляет существующий (upsert)
type Mapping struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	FromDatasetID uuid.UUID `json:"from_dataset_id"`
	ToDatasetID   uuid.UUID `json:"to_dataset_id"`

	// Transforms — выражения, строящие колонки To из колонок From.
	Transforms Transforms `json:"transforms"`

	// DQRules — правила качества данных, проверяемые воркером.
	DQRules []DQRule `json:"dq_rules"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transforms — описание трансформации.
//
// Выражения (Expr, Filters) непрозрачны для оркестратора: их вычисляет воркер.
type Transforms struct {
	Columns []TargetColumn    `json:"columns"`
	Filters []json.RawMessage `json:"filters,omitempty"`
}

// TargetColumn — выражение для одной целевой колонки.
type TargetColumn struct {
	Target string          `json:"target"`
	Expr   json.RawMessage `json:"expr"`
}

// DQRule — правило качества данных.
type DQRule struct {
	Column string `json:"column"`
	Op     string `json:"op"` // ">", ">=", "==", "is_not_null", ...
	Value  any    `json:"value,omitempty"`
}

// Validate проверяет transforms и dq_rules.
// Слои endpoints проверяет ValidateMappingEndpoints.
func (m *Mapping) Validate() error {
	if len(m.Transforms.Columns) == 0 {
		return Invalid("transforms", "at least one target column is required")
	}

	targets := make(map[string]bool, len(m.Transforms.Columns))
	for i, c := range m.Transforms.Columns {
		if strings.TrimSpace(c.Target) == "" {
			return Invalid("transforms", "column #%d has empty target", i)
		}
		if targets[c.Target] {
			return Invalid("transforms", "duplicate target %q", c.Target)
		}
		if len(c.Expr) == 0 || string(c.Expr) == "null" {
			return Invalid("transforms", "target %q has no expression", c.Target)
		}
		targets[c.Target] = true
	}

	for i, r := range m.DQRules {
		if strings.TrimSpace(r.Column) == "" {
			return Invalid("dq_rules", "rule #%d has empty column", i)
		}
		if strings.TrimSpace(r.Op) == "" {
			return Invalid("dq_rules", "rule #%d has empty op", i)
		}
	}
	return nil
}
