package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pipeline — именованная цепочка из не более чем двух mappings.
//
// SilverMappingID должен соединять bronze → silver, GoldMappingID — silver → gold.
// Оба могут отсутствовать: пустой pipeline допустим, но запустить его нельзя.
type Pipeline struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	// Name — уникальное в рамках проекта имя.
	Name string `json:"name"`

	SilverMappingID *uuid.UUID `json:"mapping_silver_id,omitempty"`
	GoldMappingID   *uuid.UUID `json:"mapping_gold_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MappingFor возвращает mapping этапа или nil, если этап не настроен.
func (p *Pipeline) MappingFor(stage Stage) *uuid.UUID {
	switch stage {
	case StageSilver:
		return p.SilverMappingID
	case StageGold:
		return p.GoldMappingID
	default:
		return nil
	}
}

// ConfiguredStages возвращает настроенные этапы в порядке выполнения.
func (p *Pipeline) ConfiguredStages() []Stage {
	stages := make([]Stage, 0, len(Stages))
	for _, s := range Stages {
		if p.MappingFor(s) != nil {
			stages = append(stages, s)
		}
	}
	return stages
}

// IsEmpty возвращает true, если ни один этап не настроен.
func (p *Pipeline) IsEmpty() bool {
	return p.SilverMappingID == nil && p.GoldMappingID == nil
}

// Validate проверяет имя pipeline.
func (p *Pipeline) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Invalid("name", "name is required")
	}
	return nil
}
