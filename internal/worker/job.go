package worker

import (
	"encoding/json"
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/shaiso/medallion/internal/domain"
)

// JobDescription — тело POST /run: одна трансформация одного этапа.
type JobDescription struct {
	Project  ProjectRef           `json:"project"`
	Datasets [2]DatasetDescriptor `json:"datasets"`
	Mapping  MappingSpec          `json:"mapping"`
}

// ProjectRef — параметры хранилища проекта.
type ProjectRef struct {
	Namespace    string `json:"namespace"`
	WarehouseURI string `json:"warehouse_uri"`
}

// MappingSpec — transforms и dq_rules mapping.
type MappingSpec struct {
	Transforms domain.Transforms `json:"transforms"`
	DQRules    []domain.DQRule   `json:"dq_rules"`
}

// Schema — схема dataset в формате воркера.
type Schema struct {
	Fields []domain.Field `json:"fields"`
}

// InnerDataset — общая часть описаний datasets.
type InnerDataset struct {
	Name       string   `json:"name"`
	PrimaryKey []string `json:"primary_key"`
	Schema     Schema   `json:"schema"`
}

// DatasetDescriptor — описание dataset в задании.
//
// Закрытый тип: реализуют только BronzeDescriptor, SilverDescriptor и GoldDescriptor.
type DatasetDescriptor interface {
	Layer() domain.Layer
	isDatasetDescriptor()
}

// BronzeDescriptor — bronze dataset вместе с источником.
type BronzeDescriptor struct {
	URI    string
	Source SourceDescriptor
	Inner  InnerDataset
}

// SilverDescriptor — silver dataset.
type SilverDescriptor struct {
	InnerDataset
}

// GoldDescriptor — gold dataset.
type GoldDescriptor struct {
	InnerDataset
}

func (BronzeDescriptor) Layer() domain.Layer { return domain.LayerBronze }
func (SilverDescriptor) Layer() domain.Layer { return domain.LayerSilver }
func (GoldDescriptor) Layer() domain.Layer   { return domain.LayerGold }

func (BronzeDescriptor) isDatasetDescriptor() {}
func (SilverDescriptor) isDatasetDescriptor() {}
func (GoldDescriptor) isDatasetDescriptor()   {}

// MarshalJSON сериализует {"Bronze": {uri, source, inner}}.
func (d BronzeDescriptor) MarshalJSON() ([]byte, error) {
	return tagged(string(d.Layer()), struct {
		URI    string           `json:"uri"`
		Source SourceDescriptor `json:"source"`
		Inner  InnerDataset     `json:"inner"`
	}{d.URI, d.Source, d.Inner})
}

// MarshalJSON сериализует {"Silver": {name, primary_key, schema}}.
func (d SilverDescriptor) MarshalJSON() ([]byte, error) {
	return tagged(string(d.Layer()), d.InnerDataset)
}

// MarshalJSON сериализует {"Gold": {name, primary_key, schema}}.
func (d GoldDescriptor) MarshalJSON() ([]byte, error) {
	return tagged(string(d.Layer()), d.InnerDataset)
}

// SourceDescriptor — настройки чтения источника в формате воркера:
// {"Csv": {delimiter, has_header, encoding}} или "Parquet".
type SourceDescriptor struct {
	Config domain.SourceConfig
}

// MarshalJSON сериализует вариант источника.
func (s SourceDescriptor) MarshalJSON() ([]byte, error) {
	cfg := s.Config.WithDefaults()
	switch cfg.Format {
	case domain.SourceFormatParquet:
		return json.Marshal(strcase.ToCamel(string(cfg.Format)))
	case domain.SourceFormatCSV:
		hasHeader := cfg.HasHeader == nil || *cfg.HasHeader
		return tagged(string(cfg.Format), struct {
			Delimiter string `json:"delimiter"`
			HasHeader bool   `json:"has_header"`
			Encoding  string `json:"encoding"`
		}{cfg.Delimiter, hasHeader, cfg.Encoding})
	default:
		return nil, fmt.Errorf("unsupported source format %q", cfg.Format)
	}
}

// tagged оборачивает payload в объект с единственным ключом-вариантом.
func tagged(variant string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{strcase.ToCamel(variant): payload})
}

func inner(d *domain.Dataset, withKey bool) InnerDataset {
	pk := []string{}
	if withKey && len(d.PrimaryKey) > 0 {
		pk = append(pk, d.PrimaryKey...)
	}
	fields := d.Schema
	if fields == nil {
		fields = []domain.Field{}
	}
	return InnerDataset{Name: d.Name, PrimaryKey: pk, Schema: Schema{Fields: fields}}
}

func mappingSpec(m *domain.Mapping) MappingSpec {
	rules := m.DQRules
	if rules == nil {
		rules = []domain.DQRule{}
	}
	return MappingSpec{Transforms: m.Transforms, DQRules: rules}
}

func projectRef(p *domain.Project) ProjectRef {
	return ProjectRef{Namespace: p.Namespace, WarehouseURI: p.WarehouseURI}
}

// NewSilverJob строит задание этапа bronze → silver.
// Первичный ключ bronze всегда пустой.
func NewSilverJob(p *domain.Project, src *domain.Source, bronze, silver *domain.Dataset, m *domain.Mapping) *JobDescription {
	return &JobDescription{
		Project: projectRef(p),
		Datasets: [2]DatasetDescriptor{
			BronzeDescriptor{
				URI:    src.URI,
				Source: SourceDescriptor{Config: src.Config},
				Inner:  inner(bronze, false),
			},
			SilverDescriptor{InnerDataset: inner(silver, true)},
		},
		Mapping: mappingSpec(m),
	}
}

// NewGoldJob строит задание этапа silver → gold.
func NewGoldJob(p *domain.Project, silver, gold *domain.Dataset, m *domain.Mapping) *JobDescription {
	return &JobDescription{
		Project: projectRef(p),
		Datasets: [2]DatasetDescriptor{
			SilverDescriptor{InnerDataset: inner(silver, true)},
			GoldDescriptor{InnerDataset: inner(gold, true)},
		},
		Mapping: mappingSpec(m),
	}
}
