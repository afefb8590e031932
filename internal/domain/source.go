package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceFormat — формат файла источника.
type SourceFormat string

const (
	SourceFormatCSV     SourceFormat = "csv"
	SourceFormatParquet SourceFormat = "parquet"
)

// Source — внешний источник данных.
//
// Удаление source каскадно удаляет его bronze dataset.
type Source struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	// Name — уникальное в рамках проекта имя. Bronze dataset источника
	// называется так же.
	Name string `json:"name"`

	// URI — адрес данных (путь к файлу, s3://..., https://...).
	URI string `json:"uri"`

	// Config — настройки чтения, зависящие от формата.
	Config SourceConfig `json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SourceConfig — настройки чтения источника.
type SourceConfig struct {
	// Format — формат данных. Default: csv.
	Format SourceFormat `json:"format,omitempty"`

	// Delimiter — разделитель полей (только csv). Default: ",".
	Delimiter string `json:"delimiter,omitempty"`

	// HasHeader — первая строка содержит заголовки (только csv). Default: true.
	HasHeader *bool `json:"has_header,omitempty"`

	// Encoding — кодировка файла (только csv). Default: "utf-8".
	Encoding string `json:"encoding,omitempty"`
}

// WithDefaults возвращает копию конфигурации с заполненными значениями по умолчанию.
func (c SourceConfig) WithDefaults() SourceConfig {
	if c.Format == "" {
		c.Format = SourceFormatCSV
	}
	if c.Format != SourceFormatCSV {
		return c
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.HasHeader == nil {
		header := true
		c.HasHeader = &header
	}
	if c.Encoding == "" {
		c.Encoding = "utf-8"
	}
	return c
}

// Validate проверяет source.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("name", "name is required")
	}
	if strings.TrimSpace(s.URI) == "" {
		return Invalid("uri", "uri is required")
	}
	switch s.Config.Format {
	case "", SourceFormatCSV, SourceFormatParquet:
	default:
		return Invalid("config.format", "unsupported format %q", s.Config.Format)
	}
	if len(s.Config.Delimiter) > 1 {
		return Invalid("config.delimiter", "delimiter must be a single character")
	}
	return nil
}
