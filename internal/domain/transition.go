package domain

import (
	"github.com/google/uuid"
)

// IsAllowedTransition возвращает true, если mapping может соединять слои from → to.
//
// Допустимы только bronze → silver и silver → gold.
func IsAllowedTransition(from, to Layer) bool {
	for _, s := range Stages {
		f, t := s.Transition()
		if f == from && t == to {
			return true
		}
	}
	return false
}

// ValidateMappingEndpoints проверяет пару datasets для создаваемого или изменяемого mapping.
//
// Nil означает, что dataset не найден.
func ValidateMappingEndpoints(projectID uuid.UUID, from, to *Dataset) error {
	if from == nil {
		return Invalid("from_dataset_id", "dataset not found")
	}
	if to == nil {
		return Invalid("to_dataset_id", "dataset not found")
	}
	if from.ProjectID != projectID {
		return Invalid("from_dataset_id", "dataset %s belongs to another project", from.ID)
	}
	if to.ProjectID != projectID {
		return Invalid("to_dataset_id", "dataset %s belongs to another project", to.ID)
	}
	if !IsAllowedTransition(from.Layer, to.Layer) {
		return Invalid("to_dataset_id",
			"transition %s -> %s is not allowed (expected bronze -> silver or silver -> gold)",
			from.Layer, to.Layer)
	}
	return nil
}

// ValidateStageMapping проверяет mapping, назначенный этапу pipeline,
// по его текущим endpoints.
//
// Ошибка всегда указывает поле этапа (mapping_silver_id / mapping_gold_id).
func ValidateStageMapping(stage Stage, projectID uuid.UUID, m *Mapping, from, to *Dataset) error {
	field := stage.Field()
	if m == nil {
		return Invalid(field, "mapping not found")
	}
	if m.ProjectID != projectID {
		return Invalid(field, "mapping %s belongs to another project", m.ID)
	}
	if from == nil || to == nil {
		return Invalid(field, "mapping %s references a missing dataset", m.ID)
	}
	if from.ProjectID != projectID || to.ProjectID != projectID {
		return Invalid(field, "mapping %s references a dataset of another project", m.ID)
	}

	wantFrom, wantTo := stage.Transition()
	if from.Layer != wantFrom || to.Layer != wantTo {
		return Invalid(field, "%s stage requires a %s -> %s mapping, got %s -> %s",
			stage, wantFrom, wantTo, from.Layer, to.Layer)
	}
	return nil
}
