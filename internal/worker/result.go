package worker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/shaiso/medallion/internal/domain"
)

// defaultReasonCode — код причины образца ошибки, если воркер его не указал.
const defaultReasonCode = "ERR"

// RunResult — ответ POST /run.
//
// Nil-поля — воркер не вернул значение.
type RunResult struct {
	Logs         []string
	OriRows      *int64
	DestRows     *int64
	RejectedRows *int64
	Snapshot     *string
	DQSummary    map[string]any
	ErrorSamples []ErrorSample
}

// ErrorSample — образец отклонённой строки.
type ErrorSample struct {
	ReasonCode   string
	Message      string
	RowNo        *int64
	SourceValues json.RawMessage
}

// StageResult переводит ответ воркера в результат этапа.
func (r *RunResult) StageResult(stage domain.Stage) domain.StageResult {
	return domain.StageResult{
		Stage:        stage,
		OriRows:      r.OriRows,
		DestRows:     r.DestRows,
		RejectedRows: r.RejectedRows,
		Snapshot:     r.Snapshot,
		DQSummary:    r.DQSummary,
		Logs:         r.Logs,
	}
}

// InferSchemaResult — ответ POST /infer_schema.
// Schema == nil, если воркер не вернул схему.
type InferSchemaResult struct {
	Schema *Schema
}

// ParseRunResult разбирает тело ответа /run.
func ParseRunResult(body []byte) (*RunResult, error) {
	root, err := parseObject(body)
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		Logs:      []string{},
		DQSummary: map[string]any{},
	}

	if res.OriRows, err = optionalInt(root, "ori_rows"); err != nil {
		return nil, err
	}
	if res.DestRows, err = optionalInt(root, "dest_rows"); err != nil {
		return nil, err
	}
	if res.RejectedRows, err = optionalInt(root, "rejected_rows"); err != nil {
		return nil, err
	}

	switch snap := root.Get("snapshot"); snap.Type {
	case gjson.Null:
	case gjson.String:
		s := snap.String()
		res.Snapshot = &s
	default:
		// идентификатор снапшота непрозрачен: число тоже принимаем
		s := snap.Raw
		res.Snapshot = &s
	}

	logs := root.Get("logs")
	if logs.Exists() && logs.Type != gjson.Null {
		if !logs.IsArray() {
			return nil, fmt.Errorf("%w: logs is not an array", ErrMalformedResponse)
		}
		logs.ForEach(func(_, v gjson.Result) bool {
			res.Logs = append(res.Logs, v.String())
			return true
		})
	}

	if res.DQSummary, err = parseDQSummary(root.Get("dq_summary")); err != nil {
		return nil, err
	}

	samples := root.Get("error_samples")
	if samples.Exists() && samples.Type != gjson.Null {
		if !samples.IsArray() {
			return nil, fmt.Errorf("%w: error_samples is not an array", ErrMalformedResponse)
		}
		for _, v := range samples.Array() {
			res.ErrorSamples = append(res.ErrorSamples, parseErrorSample(v))
		}
	}

	return res, nil
}

// ParseInferSchemaResult разбирает тело ответа /infer_schema.
func ParseInferSchemaResult(body []byte) (*InferSchemaResult, error) {
	root, err := parseObject(body)
	if err != nil {
		return nil, err
	}

	fields := root.Get("schema.fields")
	if !fields.Exists() || fields.Type == gjson.Null {
		return &InferSchemaResult{}, nil
	}
	if !fields.IsArray() {
		return nil, fmt.Errorf("%w: schema.fields is not an array", ErrMalformedResponse)
	}

	schema := &Schema{Fields: []domain.Field{}}
	for _, f := range fields.Array() {
		schema.Fields = append(schema.Fields, domain.Field{
			Name:     f.Get("name").String(),
			Type:     f.Get("type").String(),
			Nullable: f.Get("nullable").Bool(),
		})
	}
	return &InferSchemaResult{Schema: schema}, nil
}

// parseObject проверяет, что тело — JSON-объект. Пустое тело — пустой объект.
func parseObject(body []byte) (gjson.Result, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return gjson.Parse("{}"), nil
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: expected JSON object", ErrMalformedResponse)
	}
	return root, nil
}

func optionalInt(root gjson.Result, key string) (*int64, error) {
	v := root.Get(key)
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		n := v.Int()
		return &n, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a number", ErrMalformedResponse, key)
	}
}

// parseDQSummary принимает объект или список {rule_code, ...}.
// Элементы списка становятся ключами rule_code.
func parseDQSummary(v gjson.Result) (map[string]any, error) {
	summary := map[string]any{}
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return summary, nil
	case v.IsObject():
		if m, ok := v.Value().(map[string]any); ok {
			return m, nil
		}
		return summary, nil
	case v.IsArray():
		for i, item := range v.Array() {
			key := item.Get("rule_code").String()
			if key == "" {
				key = fmt.Sprintf("rule_%d", i)
			}
			entry, ok := item.Value().(map[string]any)
			if !ok {
				summary[key] = item.Value()
				continue
			}
			delete(entry, "rule_code")
			summary[key] = entry
		}
		return summary, nil
	default:
		return nil, fmt.Errorf("%w: dq_summary must be an object or a list", ErrMalformedResponse)
	}
}

func parseErrorSample(v gjson.Result) ErrorSample {
	s := ErrorSample{
		ReasonCode: v.Get("reason_code").String(),
		Message:    v.Get("message").String(),
	}
	if s.ReasonCode == "" {
		s.ReasonCode = defaultReasonCode
	}
	if row := v.Get("row_no"); row.Type == gjson.Number {
		n := row.Int()
		s.RowNo = &n
	}
	if values := v.Get("source_values"); values.Exists() && values.Type != gjson.Null {
		s.SourceValues = json.RawMessage(values.Raw)
	}
	return s
}
