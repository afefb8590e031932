package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project — рабочее пространство (tenant).
//
// Project — корень владения: sources, datasets, mappings, pipelines и runs
// принадлежат ровно одному проекту. Удаление проекта удаляет всё каскадно.
type Project struct {
	// ID — уникальный идентификатор проекта.
	ID uuid.UUID `json:"id"`

	// Slug — уникальное человекочитаемое имя (например, "dvf").
	Slug string `json:"slug"`

	// WarehouseURI — расположение хранилища (например, "file:///warehouse").
	// Передаётся воркеру в каждом задании.
	WarehouseURI string `json:"warehouse_uri"`

	// Namespace — пространство имён таблиц проекта в хранилище.
	Namespace string `json:"namespace"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate проверяет обязательные поля проекта.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Slug) == "" {
		return Invalid("slug", "slug is required")
	}
	if strings.TrimSpace(p.WarehouseURI) == "" {
		return Invalid("warehouse_uri", "warehouse_uri is required")
	}
	if strings.TrimSpace(p.Namespace) == "" {
		return Invalid("namespace", "namespace is required")
	}
	return nil
}
