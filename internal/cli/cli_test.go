package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]string{"code": "VALIDATION_FAILED", "message": "must not be empty", "field": "slug"},
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).CreateProject(context.Background(), CreateProjectRequest{Namespace: "ns"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "slug", apiErr.Field)
	assert.Equal(t, "VALIDATION_FAILED: slug: must not be empty", apiErr.Error())
}

func TestClient_APIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).DeleteProject(context.Background(), "dvf")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "HTTP_502", apiErr.Code)
}

func TestClient_InferSchemaWithoutSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects/dvf/sources/s1/infer_schema", r.URL.Path)
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		writeJSON(t, w, http.StatusOK, map[string]any{"data": nil})
	}))
	defer srv.Close()

	bronze, err := NewClient(srv.URL).InferSchema(context.Background(), "dvf", "s1", 500)
	require.NoError(t, err)
	assert.Nil(t, bronze)
}

func TestClient_ListRunErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects/dvf/runs/r1/errors", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("offset"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"data":  []map[string]any{{"id": "e2", "stage": "silver", "reason_code": "DQ_FAILED", "message": "amount < 0"}},
			"total": 2,
		})
	}))
	defer srv.Close()

	samples, total, err := NewClient(srv.URL).ListRunErrors(context.Background(), "dvf", "r1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, samples, 1)
	assert.Equal(t, "DQ_FAILED", samples[0].ReasonCode)
}

func TestClient_ListRunsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "p1", q.Get("pipeline_id"))
		assert.Equal(t, "failed", q.Get("state"))
		assert.Equal(t, "5", q.Get("limit"))
		writeJSON(t, w, http.StatusOK, map[string]any{"data": []any{}, "total": 0})
	}))
	defer srv.Close()

	runs, err := NewClient(srv.URL).ListRuns(context.Background(), "dvf", ListRunsOpts{PipelineID: "p1", State: "failed", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// execute запускает команду с --project dvf и возвращает stdout и stderr.
func execute(t *testing.T, handler http.HandlerFunc, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	project := "dvf"
	clientFn := func() *Client { return NewClient(srv.URL) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	cmd := NewRunCmd(clientFn, outputFn, ProjectFrom(&project))
	cmd.AddCommand(NewMappingCmd(clientFn, outputFn, ProjectFrom(&project)))
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunStartCmd_FailedRun(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["pipeline_id"])

		writeJSON(t, w, http.StatusCreated, map[string]any{"data": map[string]any{
			"id": "r1", "pipeline_id": "p1", "state": "failed",
			"failed_stage": "silver", "failure_code": "WORKER_UNAVAILABLE", "state_reason": "connection refused",
			"completed_stages": []string{},
		}})
	}

	stdout, stderr, err := execute(t, handler, false, "start", "p1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Run r1 failed at silver stage (WORKER_UNAVAILABLE): connection refused")
	assert.Contains(t, stdout, "r1")
	assert.Contains(t, stdout, "failed")
}

func TestRunShowCmd_JSON(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects/dvf/runs/r1", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": "r1", "state": "succeeded", "rows_source": 100, "rows_silver": 95,
		}})
	}

	stdout, _, err := execute(t, handler, true, "show", "r1")
	require.NoError(t, err)

	var run RunResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &run))
	require.NotNil(t, run.RowsSilver)
	assert.EqualValues(t, 95, *run.RowsSilver)
}

func TestRunShowCmd_Table(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{
			"id": "r1", "state": "succeeded", "rows_source": 100,
			"logs": []string{"silver: 95 rows"},
		}})
	}

	stdout, _, err := execute(t, handler, false, "show", "r1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rows_source")
	assert.Contains(t, stdout, "100")
	assert.Contains(t, stdout, "silver: 95 rows")
}

func TestMappingCreateCmd_TransformsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transforms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"columns":[{"name":"amount","expr":"montant"}]}`), 0o600))

	handler := func(w http.ResponseWriter, r *http.Request) {
		var req MappingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b1", req.FromDatasetID)
		assert.JSONEq(t, `{"columns":[{"name":"amount","expr":"montant"}]}`, string(req.Transforms))
		assert.Empty(t, req.DQRules)

		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"id": "m1", "from_dataset_id": "b1", "to_dataset_id": "s1"}})
	}

	_, stderr, err := execute(t, handler, false, "mapping", "create", "--from", "b1", "--to", "s1", "--transforms", "@"+path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Mapping saved: m1")
}

func TestMappingCreateCmd_InvalidJSON(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	}

	_, _, err := execute(t, handler, false, "mapping", "create", "--from", "b1", "--to", "s1", "--transforms", "{")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--transforms is not valid JSON")
}

func TestProjectFrom_Required(t *testing.T) {
	empty := ""
	_, err := ProjectFrom(&empty)()
	assert.ErrorIs(t, err, errNoProject)
}

func TestOutput_EmptyTable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	NewOutputTo(false, &stdout, &stderr).Print([]string{"ID"}, nil, []RunResponse{})

	assert.Empty(t, stdout.String())
	assert.Equal(t, "No results\n", stderr.String())
}

func TestOutput_JSONEmptyList(t *testing.T) {
	var stdout bytes.Buffer
	NewOutputTo(true, &stdout, io.Discard).Print([]string{"ID"}, nil, []RunResponse{})

	assert.JSONEq(t, `[]`, stdout.String())
}
