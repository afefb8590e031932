package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_Validate(t *testing.T) {
	sourceID := uuid.New()
	schema := []Field{{Name: "id", Type: "str"}, {Name: "amount", Type: "f64", Nullable: true}}

	tests := []struct {
		name      string
		dataset   Dataset
		wantField string
	}{
		{"valid bronze", Dataset{Name: "sales", Layer: LayerBronze, SourceID: &sourceID, Schema: schema}, ""},
		{"valid silver", Dataset{Name: "silver", Layer: LayerSilver, Schema: schema, PrimaryKey: []string{"id"}}, ""},
		{"empty name", Dataset{Layer: LayerSilver, Schema: schema}, "name"},
		{"unknown layer", Dataset{Name: "x", Layer: "platinum", Schema: schema}, "layer"},
		{"empty schema", Dataset{Name: "x", Layer: LayerGold}, "schema"},
		{"duplicate field", Dataset{Name: "x", Layer: LayerGold, Schema: []Field{{Name: "a", Type: "str"}, {Name: "a", Type: "i64"}}}, "schema"},
		{"field without type", Dataset{Name: "x", Layer: LayerGold, Schema: []Field{{Name: "a"}}}, "schema"},
		{"bronze with pk", Dataset{Name: "x", Layer: LayerBronze, Schema: schema, PrimaryKey: []string{"id"}}, "primary_key"},
		{"silver with source", Dataset{Name: "x", Layer: LayerSilver, SourceID: &sourceID, Schema: schema}, "source_id"},
		{"pk not in schema", Dataset{Name: "x", Layer: LayerGold, Schema: schema, PrimaryKey: []string{"nope"}}, "primary_key"},
		{"duplicate pk", Dataset{Name: "x", Layer: LayerGold, Schema: schema, PrimaryKey: []string{"id", "id"}}, "primary_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dataset.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			verr, ok := AsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestCanonicalType(t *testing.T) {
	cases := map[string]string{
		"Utf8":      "str",
		"string":    "str",
		"double":    "f64",
		"float32":   "f64",
		"Int64":     "i64",
		"i32":       "i64",
		"boolean":   "bool",
		"date32":    "date",
		"timestamp": "datetime",
		"decimal":   "str",
		"":          "str",
	}
	for in, want := range cases {
		assert.Equal(t, want, CanonicalType(in), in)
	}
}

func TestMapping_Validate(t *testing.T) {
	expr := json.RawMessage(`{"col":"id"}`)

	valid := Mapping{
		Transforms: Transforms{Columns: []TargetColumn{{Target: "id", Expr: expr}}},
		DQRules:    []DQRule{{Column: "id", Op: "is_not_null"}},
	}
	assert.NoError(t, valid.Validate())

	empty := Mapping{}
	assert.ErrorIs(t, empty.Validate(), ErrValidation)

	dup := Mapping{Transforms: Transforms{Columns: []TargetColumn{{Target: "id", Expr: expr}, {Target: "id", Expr: expr}}}}
	assert.ErrorIs(t, dup.Validate(), ErrValidation)

	noExpr := Mapping{Transforms: Transforms{Columns: []TargetColumn{{Target: "id", Expr: json.RawMessage("null")}}}}
	assert.ErrorIs(t, noExpr.Validate(), ErrValidation)

	badRule := valid
	badRule.DQRules = []DQRule{{Column: "id"}}
	verr, ok := AsValidation(badRule.Validate())
	require.True(t, ok)
	assert.Equal(t, "dq_rules", verr.Field)
}

func TestSourceConfig_WithDefaults(t *testing.T) {
	cfg := SourceConfig{}.WithDefaults()
	assert.Equal(t, SourceFormatCSV, cfg.Format)
	assert.Equal(t, ",", cfg.Delimiter)
	require.NotNil(t, cfg.HasHeader)
	assert.True(t, *cfg.HasHeader)
	assert.Equal(t, "utf-8", cfg.Encoding)

	noHeader := false
	cfg = SourceConfig{Delimiter: ";", HasHeader: &noHeader}.WithDefaults()
	assert.Equal(t, ";", cfg.Delimiter)
	assert.False(t, *cfg.HasHeader)

	parquet := SourceConfig{Format: SourceFormatParquet}.WithDefaults()
	assert.Empty(t, parquet.Delimiter)
	assert.Nil(t, parquet.HasHeader)
}
