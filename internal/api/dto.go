package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/domain"
)

// Project DTOs

// CreateProjectRequest — запрос на создание проекта.
type CreateProjectRequest struct {
	Slug         string `json:"slug" validate:"required,max=64"`
	WarehouseURI string `json:"warehouse_uri"`
	Namespace    string `json:"namespace" validate:"required,max=128"`
}

// Source DTOs

// SourceRequest — запрос на создание или замену source.
type SourceRequest struct {
	Name   string              `json:"name" validate:"required,max=128"`
	URI    string              `json:"uri" validate:"required"`
	Config SourceConfigRequest `json:"config"`
}

// SourceConfigRequest — настройки чтения source.
type SourceConfigRequest struct {
	Format    string `json:"format" validate:"omitempty,oneof=csv parquet"`
	Delimiter string `json:"delimiter" validate:"omitempty,len=1"`
	HasHeader *bool  `json:"has_header"`
	Encoding  string `json:"encoding"`
}

func (r SourceRequest) input() catalog.SourceInput {
	return catalog.SourceInput{
		Name: r.Name,
		URI:  r.URI,
		Config: domain.SourceConfig{
			Format:    domain.SourceFormat(r.Config.Format),
			Delimiter: r.Config.Delimiter,
			HasHeader: r.Config.HasHeader,
			Encoding:  r.Config.Encoding,
		},
	}
}

// Dataset DTOs

// FieldRequest — колонка схемы.
type FieldRequest struct {
	Name     string `json:"name" validate:"required"`
	Type     string `json:"type" validate:"required"`
	Nullable bool   `json:"nullable"`
}

func fields(in []FieldRequest) []domain.Field {
	if in == nil {
		return nil
	}
	out := make([]domain.Field, len(in))
	for i, f := range in {
		out[i] = domain.Field{Name: f.Name, Type: f.Type, Nullable: f.Nullable}
	}
	return out
}

// SilverSchemaRequest — схема silver dataset.
type SilverSchemaRequest struct {
	Schema     []FieldRequest `json:"schema" validate:"required,min=1,dive"`
	PrimaryKey []string       `json:"primary_key" validate:"required,min=1,dive,required"`
}

// CreateGoldRequest — запрос на создание gold dataset.
type CreateGoldRequest struct {
	Name       string         `json:"name" validate:"required,max=128"`
	Schema     []FieldRequest `json:"schema" validate:"required,min=1,dive"`
	PrimaryKey []string       `json:"primary_key" validate:"omitempty,dive,required"`
}

// UpdateGoldRequest — частичное изменение gold dataset.
type UpdateGoldRequest struct {
	Name       *string        `json:"name" validate:"omitempty,min=1,max=128"`
	Schema     []FieldRequest `json:"schema" validate:"omitempty,min=1,dive"`
	PrimaryKey *[]string      `json:"primary_key"`
}

// Mapping DTOs

// MappingRequest — запрос на создание (upsert) mapping.
type MappingRequest struct {
	FromDatasetID uuid.UUID         `json:"from_dataset_id" validate:"required"`
	ToDatasetID   uuid.UUID         `json:"to_dataset_id" validate:"required"`
	Transforms    domain.Transforms `json:"transforms"`
	DQRules       []domain.DQRule   `json:"dq_rules"`
}

// UpdateMappingRequest — частичное изменение mapping.
type UpdateMappingRequest struct {
	FromDatasetID *uuid.UUID         `json:"from_dataset_id"`
	ToDatasetID   *uuid.UUID         `json:"to_dataset_id"`
	Transforms    *domain.Transforms `json:"transforms"`
	DQRules       *[]domain.DQRule   `json:"dq_rules"`
}

// Pipeline DTOs

// CreatePipelineRequest — запрос на создание pipeline.
type CreatePipelineRequest struct {
	Name            string     `json:"name" validate:"required,max=128"`
	SilverMappingID *uuid.UUID `json:"mapping_silver_id"`
	GoldMappingID   *uuid.UUID `json:"mapping_gold_id"`
}

// UpdatePipelineRequest — изменение pipeline.
//
// Отсутствующее поле этапа не меняет его, null снимает этап.
type UpdatePipelineRequest struct {
	Name            *string    `json:"name" validate:"omitempty,min=1,max=128"`
	SilverMappingID OptionalID `json:"mapping_silver_id"`
	GoldMappingID   OptionalID `json:"mapping_gold_id"`
}

func (r UpdatePipelineRequest) patch() catalog.PipelinePatch {
	return catalog.PipelinePatch{
		Name:            r.Name,
		SilverMappingID: r.SilverMappingID.Value,
		GoldMappingID:   r.GoldMappingID.Value,
		ClearSilver:     r.SilverMappingID.Set && r.SilverMappingID.Value == nil,
		ClearGold:       r.GoldMappingID.Set && r.GoldMappingID.Value == nil,
	}
}

// OptionalID различает отсутствующее поле и явный null.
type OptionalID struct {
	Set   bool
	Value *uuid.UUID
}

// UnmarshalJSON вызывается только для присутствующего поля.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	o.Value = &id
	return nil
}

// Run DTOs

// StartRunRequest — запрос на запуск pipeline.
type StartRunRequest struct {
	PipelineID uuid.UUID `json:"pipeline_id" validate:"required"`
}

// RunResponse — ответ с run.
type RunResponse struct {
	domain.Run
	// DurationMS — длительность завершённого run.
	DurationMS *int64 `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	resp := RunResponse{Run: r}
	if r.IsFinished() {
		ms := r.Duration().Milliseconds()
		resp.DurationMS = &ms
	}
	return resp
}

// ErrorSampleResponse — образец отклонённой строки.
type ErrorSampleResponse struct {
	ID           uuid.UUID       `json:"id"`
	Stage        domain.Stage    `json:"stage"`
	ReasonCode   string          `json:"reason_code"`
	Message      string          `json:"message"`
	RowNo        *int64          `json:"row_no,omitempty"`
	SourceValues json.RawMessage `json:"source_values,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ErrorSampleFromDomain конвертирует domain.RunErrorSample в ErrorSampleResponse.
func ErrorSampleFromDomain(s domain.RunErrorSample) ErrorSampleResponse {
	return ErrorSampleResponse{
		ID:           s.ID,
		Stage:        s.Stage,
		ReasonCode:   s.ReasonCode,
		Message:      s.Message,
		RowNo:        s.RowNo,
		SourceValues: s.SourceValues,
		CreatedAt:    s.CreatedAt,
	}
}
