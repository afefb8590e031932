package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/orchestrator"
	"github.com/shaiso/medallion/internal/telemetry"
	"github.com/shaiso/medallion/internal/testutil/memstore"
	"github.com/shaiso/medallion/internal/worker"
)

type stubWorker struct {
	schema *worker.Schema
	result *worker.RunResult
}

func (w *stubWorker) InferSchema(context.Context, worker.InferSchemaRequest) (*worker.InferSchemaResult, error) {
	return &worker.InferSchemaResult{Schema: w.schema}, nil
}

func (w *stubWorker) Run(context.Context, *worker.JobDescription) (*worker.RunResult, error) {
	if w.result == nil {
		return &worker.RunResult{}, nil
	}
	return w.result, nil
}

type testServer struct {
	t       *testing.T
	srv     *httptest.Server
	metrics *telemetry.Metrics
}

func newTestServer(t *testing.T, w *stubWorker) *testServer {
	t.Helper()
	store := memstore.New()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	svc := catalog.New(catalog.Config{
		Projects:            store.Projects(),
		Sources:             store.Sources(),
		Datasets:            store.Datasets(),
		Mappings:            store.Mappings(),
		Pipelines:           store.Pipelines(),
		Runs:                store.Runs(),
		Inferrer:            w,
		DefaultWarehouseURI: "file:///warehouse",
	})
	orch := orchestrator.New(orchestrator.Config{
		Projects:  store.Projects(),
		Sources:   store.Sources(),
		Datasets:  store.Datasets(),
		Mappings:  store.Mappings(),
		Pipelines: store.Pipelines(),
		Runs:      store.Runs(),
		Worker:    w,
		Metrics:   metrics,
	})

	mux := http.NewServeMux()
	NewHandler(Config{Catalog: svc, Runs: orch, Metrics: metrics}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, metrics: metrics}
}

// do отправляет запрос; body — значение для JSON или готовая строка.
func (s *testServer) do(method, path string, body any) (int, []byte) {
	s.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, out
}

// mustDo требует статус want и возвращает тело.
func (s *testServer) mustDo(want int, method, path string, body any) []byte {
	s.t.Helper()
	status, out := s.do(method, path, body)
	require.Equal(s.t, want, status, string(out))
	return out
}

func requireFieldError(t *testing.T, status int, body []byte, field string) {
	t.Helper()
	require.Equal(t, http.StatusUnprocessableEntity, status, string(body))
	assert.Equal(t, "VALIDATION_FAILED", gjson.GetBytes(body, "error.code").String())
	assert.Equal(t, field, gjson.GetBytes(body, "error.field").String())
}

// seed создаёт проект с source, bronze (через infer_schema), silver и gold.
type seeded struct {
	project, source, bronze, silver, gold string
}

func (s *testServer) seed() seeded {
	s.t.Helper()
	var out seeded
	s.mustDo(http.StatusCreated, "POST", "/api/v1/projects", map[string]any{"slug": "dvf", "namespace": "dvf"})
	out.project = "/api/v1/projects/dvf"

	body := s.mustDo(http.StatusCreated, "POST", out.project+"/sources", map[string]any{
		"name": "sales", "uri": "/data/sales.csv", "config": map[string]any{"delimiter": ";"},
	})
	out.source = gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusOK, "POST", out.project+"/sources/"+out.source+"/infer_schema?limit=50", nil)
	out.bronze = gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusOK, "PUT", out.project+"/silver", map[string]any{
		"schema":      []map[string]any{{"name": "id", "type": "str"}, {"name": "amount", "type": "f64", "nullable": true}},
		"primary_key": []string{"id"},
	})
	out.silver = gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusCreated, "POST", out.project+"/gold", map[string]any{
		"name":        "daily_totals",
		"schema":      []map[string]any{{"name": "id", "type": "str"}},
		"primary_key": []string{"id"},
	})
	out.gold = gjson.GetBytes(body, "data.id").String()
	return out
}

func (s *testServer) mapping(project, from, to string) string {
	s.t.Helper()
	body := s.mustDo(http.StatusOK, "POST", project+"/mappings", map[string]any{
		"from_dataset_id": from,
		"to_dataset_id":   to,
		"transforms":      map[string]any{"columns": []map[string]any{{"target": "id", "expr": map[string]any{"col": "id"}}}},
	})
	return gjson.GetBytes(body, "data.id").String()
}

func defaultWorker() *stubWorker {
	rows := func(n int64) *int64 { return &n }
	snap := "snap1"
	return &stubWorker{
		schema: &worker.Schema{Fields: []domain.Field{{Name: "id", Type: "Utf8"}, {Name: "amount", Type: "Float64"}}},
		result: &worker.RunResult{
			OriRows:      rows(100),
			DestRows:     rows(95),
			RejectedRows: rows(5),
			Snapshot:     &snap,
			ErrorSamples: []worker.ErrorSample{
				{ReasonCode: "DQ_FAILED", Message: "amount <= 0", RowNo: rows(7)},
				{ReasonCode: "CAST_FAILED", Message: "bad number"},
			},
		},
	}
}

func TestAPI_PipelineLifecycle(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()

	body := s.mustDo(http.StatusOK, "GET", ids.project+"/datasets?layer=bronze", nil)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "total").Int())
	assert.Equal(t, "sales", gjson.GetBytes(body, "data.0.name").String())

	m1 := s.mapping(ids.project, ids.bronze, ids.silver)
	body = s.mustDo(http.StatusCreated, "POST", ids.project+"/pipelines", map[string]any{
		"name": "daily", "mapping_silver_id": m1,
	})
	pipelineID := gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusCreated, "POST", ids.project+"/runs", map[string]any{"pipeline_id": pipelineID})
	runID := gjson.GetBytes(body, "data.id").String()
	assert.Equal(t, "succeeded", gjson.GetBytes(body, "data.state").String())
	assert.Equal(t, int64(100), gjson.GetBytes(body, "data.rows_source").Int())
	assert.Equal(t, int64(95), gjson.GetBytes(body, "data.rows_silver").Int())
	assert.Equal(t, int64(5), gjson.GetBytes(body, "data.rows_source_rejected").Int())
	assert.Equal(t, "snap1", gjson.GetBytes(body, "data.silver_snapshot").String())
	assert.Equal(t, gjson.Null, gjson.GetBytes(body, "data.rows_gold").Type)
	assert.True(t, gjson.GetBytes(body, "data.duration_ms").Exists())

	body = s.mustDo(http.StatusOK, "GET", ids.project+"/runs/"+runID, nil)
	assert.Equal(t, "succeeded", gjson.GetBytes(body, "data.state").String())

	body = s.mustDo(http.StatusOK, "GET", ids.project+"/runs?pipeline_id="+pipelineID+"&state=succeeded", nil)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "total").Int())

	body = s.mustDo(http.StatusOK, "GET", ids.project+"/runs/"+runID+"/errors?limit=1", nil)
	assert.Equal(t, int64(2), gjson.GetBytes(body, "total").Int())
	assert.Len(t, gjson.GetBytes(body, "data").Array(), 1)
	assert.Equal(t, "DQ_FAILED", gjson.GetBytes(body, "data.0.reason_code").String())
	assert.Equal(t, "silver", gjson.GetBytes(body, "data.0.stage").String())
}

func TestAPI_ProjectValidation(t *testing.T) {
	s := newTestServer(t, defaultWorker())

	status, body := s.do("POST", "/api/v1/projects", map[string]any{"slug": "dvf"})
	requireFieldError(t, status, body, "namespace")

	status, body = s.do("POST", "/api/v1/projects", `{"slug": `)
	assert.Equal(t, http.StatusBadRequest, status, string(body))
	assert.Equal(t, "BAD_REQUEST", gjson.GetBytes(body, "error.code").String())

	s.mustDo(http.StatusCreated, "POST", "/api/v1/projects", map[string]any{"slug": "dvf", "namespace": "dvf"})
	status, body = s.do("POST", "/api/v1/projects", map[string]any{"slug": "dvf", "namespace": "other"})
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, _ = s.do("GET", "/api/v1/projects/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	body = s.mustDo(http.StatusOK, "GET", "/api/v1/projects/dvf", nil)
	assert.Equal(t, "file:///warehouse", gjson.GetBytes(body, "data.warehouse_uri").String())
}

func TestAPI_SourceValidation(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	s.mustDo(http.StatusCreated, "POST", "/api/v1/projects", map[string]any{"slug": "dvf", "namespace": "dvf"})

	status, body := s.do("POST", "/api/v1/projects/dvf/sources", map[string]any{
		"name": "sales", "uri": "/x.csv", "config": map[string]any{"format": "xlsx"},
	})
	requireFieldError(t, status, body, "config.format")

	status, body = s.do("POST", "/api/v1/projects/dvf/sources", map[string]any{"name": "sales"})
	requireFieldError(t, status, body, "uri")

	status, _ = s.do("GET", "/api/v1/projects/dvf/sources/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_MappingLayerRule(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()

	status, body := s.do("POST", ids.project+"/mappings", map[string]any{
		"from_dataset_id": ids.bronze,
		"to_dataset_id":   ids.gold,
		"transforms":      map[string]any{"columns": []map[string]any{{"target": "id", "expr": "id"}}},
	})
	requireFieldError(t, status, body, "to_dataset_id")
}

func TestAPI_PipelineStageRule(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()
	m2 := s.mapping(ids.project, ids.silver, ids.gold)

	status, body := s.do("POST", ids.project+"/pipelines", map[string]any{"name": "bad", "mapping_silver_id": m2})
	requireFieldError(t, status, body, "mapping_silver_id")

	body = s.mustDo(http.StatusCreated, "POST", ids.project+"/pipelines", map[string]any{"name": "gold-only", "mapping_gold_id": m2})
	pipeline := ids.project + "/pipelines/" + gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusOK, "PUT", pipeline, map[string]any{"name": "renamed"})
	assert.Equal(t, m2, gjson.GetBytes(body, "data.mapping_gold_id").String(), "absent stage field is kept")

	body = s.mustDo(http.StatusOK, "PUT", pipeline, `{"mapping_gold_id": null}`)
	assert.False(t, gjson.GetBytes(body, "data.mapping_gold_id").Exists(), "null clears the stage")
}

func TestAPI_StartRunErrors(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()

	body := s.mustDo(http.StatusCreated, "POST", ids.project+"/pipelines", map[string]any{"name": "empty"})
	emptyID := gjson.GetBytes(body, "data.id").String()

	status, body := s.do("POST", ids.project+"/runs", map[string]any{"pipeline_id": emptyID})
	requireFieldError(t, status, body, "pipeline_id")

	status, body = s.do("POST", ids.project+"/runs", map[string]any{})
	requireFieldError(t, status, body, "pipeline_id")

	status, _ = s.do("POST", ids.project+"/runs", map[string]any{"pipeline_id": "00000000-0000-0000-0000-000000000001"})
	assert.Equal(t, http.StatusNotFound, status)

	body = s.mustDo(http.StatusOK, "GET", ids.project+"/runs", nil)
	assert.Equal(t, int64(0), gjson.GetBytes(body, "total").Int())
}

func TestAPI_GoldOnlyThroughGoldRoutes(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()

	status, _ := s.do("PUT", ids.project+"/gold/"+ids.silver, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, status)

	body := s.mustDo(http.StatusOK, "PUT", ids.project+"/gold/"+ids.gold, map[string]any{"name": "totals"})
	assert.Equal(t, "totals", gjson.GetBytes(body, "data.name").String())

	s.mustDo(http.StatusNoContent, "DELETE", ids.project+"/gold/"+ids.gold, nil)
	status, _ = s.do("GET", ids.project+"/datasets/"+ids.gold, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_SeedSilver(t *testing.T) {
	s := newTestServer(t, defaultWorker())
	ids := s.seed()

	body := s.mustDo(http.StatusOK, "POST", ids.project+"/silver/seed-from-source/"+ids.source, nil)
	assert.Equal(t, ids.silver, gjson.GetBytes(body, "data.id").String())
	assert.Equal(t, "str", gjson.GetBytes(body, "data.schema.0.type").String())
	assert.Equal(t, "f64", gjson.GetBytes(body, "data.schema.1.type").String())
	assert.True(t, gjson.GetBytes(body, "data.schema.0.nullable").Bool())
	assert.Equal(t, "id", gjson.GetBytes(body, "data.primary_key.0").String())
}

func TestAPI_InferSchemaWithoutSchema(t *testing.T) {
	s := newTestServer(t, &stubWorker{})
	s.mustDo(http.StatusCreated, "POST", "/api/v1/projects", map[string]any{"slug": "dvf", "namespace": "dvf"})
	body := s.mustDo(http.StatusCreated, "POST", "/api/v1/projects/dvf/sources", map[string]any{"name": "sales", "uri": "/x.csv"})
	sourceID := gjson.GetBytes(body, "data.id").String()

	body = s.mustDo(http.StatusOK, "POST", "/api/v1/projects/dvf/sources/"+sourceID+"/infer_schema", nil)
	assert.Equal(t, gjson.Null, gjson.GetBytes(body, "data").Type)
}

func TestAPI_HealthzAndMetrics(t *testing.T) {
	s := newTestServer(t, defaultWorker())

	body := s.mustDo(http.StatusOK, "GET", "/healthz", nil)
	assert.Equal(t, "ok", gjson.GetBytes(body, "status").String())

	s.mustDo(http.StatusOK, "GET", "/api/v1/projects", nil)
	s.do("GET", "/api/v1/projects/missing", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequestsTotal.WithLabelValues("GET", "404")))
}
