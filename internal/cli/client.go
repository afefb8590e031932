package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ProjectResponse — проект из API.
type ProjectResponse struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	WarehouseURI string `json:"warehouse_uri"`
	Namespace    string `json:"namespace"`
	CreatedAt    string `json:"created_at"`
}

// SourceConfig — настройки чтения source.
type SourceConfig struct {
	Format    string `json:"format,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	HasHeader *bool  `json:"has_header,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
}

// SourceResponse — source из API.
type SourceResponse struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	URI       string       `json:"uri"`
	Config    SourceConfig `json:"config"`
	CreatedAt string       `json:"created_at"`
}

// Field — колонка схемы.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// DatasetResponse — dataset из API.
type DatasetResponse struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"source_id,omitempty"`
	Name       string   `json:"name"`
	Layer      string   `json:"layer"`
	Schema     []Field  `json:"schema"`
	PrimaryKey []string `json:"primary_key"`
	UpdatedAt  string   `json:"updated_at"`
}

// MappingResponse — mapping из API.
type MappingResponse struct {
	ID            string          `json:"id"`
	FromDatasetID string          `json:"from_dataset_id"`
	ToDatasetID   string          `json:"to_dataset_id"`
	Transforms    json.RawMessage `json:"transforms"`
	DQRules       json.RawMessage `json:"dq_rules"`
	UpdatedAt     string          `json:"updated_at"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SilverMappingID string `json:"mapping_silver_id,omitempty"`
	GoldMappingID   string `json:"mapping_gold_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID                 string         `json:"id"`
	PipelineID         string         `json:"pipeline_id"`
	State              string         `json:"state"`
	StateReason        string         `json:"state_reason,omitempty"`
	FailureCode        string         `json:"failure_code,omitempty"`
	FailedStage        string         `json:"failed_stage,omitempty"`
	CompletedStages    []string       `json:"completed_stages"`
	RowsSource         *int64         `json:"rows_source"`
	RowsSourceRejected *int64         `json:"rows_source_rejected"`
	RowsSilver         *int64         `json:"rows_silver"`
	RowsSilverRejected *int64         `json:"rows_silver_rejected"`
	RowsGold           *int64         `json:"rows_gold"`
	SilverSnapshot     *string        `json:"silver_snapshot"`
	GoldSnapshot       *string        `json:"gold_snapshot"`
	DQSummary          map[string]any `json:"dq_summary"`
	Logs               []string       `json:"logs"`
	DurationMS         *int64         `json:"duration_ms,omitempty"`
	CreatedAt          string         `json:"created_at"`
}

// ErrorSampleResponse — образец отклонённой строки из API.
type ErrorSampleResponse struct {
	ID           string          `json:"id"`
	Stage        string          `json:"stage"`
	ReasonCode   string          `json:"reason_code"`
	Message      string          `json:"message"`
	RowNo        *int64          `json:"row_no,omitempty"`
	SourceValues json.RawMessage `json:"source_values,omitempty"`
}

// --- Request types ---

// CreateProjectRequest — создание проекта.
type CreateProjectRequest struct {
	Slug         string `json:"slug"`
	WarehouseURI string `json:"warehouse_uri,omitempty"`
	Namespace    string `json:"namespace"`
}

// SourceRequest — создание source.
type SourceRequest struct {
	Name   string       `json:"name"`
	URI    string       `json:"uri"`
	Config SourceConfig `json:"config"`
}

// MappingRequest — создание mapping.
type MappingRequest struct {
	FromDatasetID string          `json:"from_dataset_id"`
	ToDatasetID   string          `json:"to_dataset_id"`
	Transforms    json.RawMessage `json:"transforms"`
	DQRules       json.RawMessage `json:"dq_rules,omitempty"`
}

// CreatePipelineRequest — создание pipeline.
type CreatePipelineRequest struct {
	Name            string `json:"name"`
	SilverMappingID string `json:"mapping_silver_id,omitempty"`
	GoldMappingID   string `json:"mapping_gold_id,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	PipelineID string
	State      string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для medallion API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient создаёт клиент для API.
//
// Запуск run ждёт его завершения, поэтому таймаут применяется
// ко всем запросам, кроме StartRun.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
	}
}

func projectPath(project string) string {
	return "/api/v1/projects/" + url.PathEscape(project)
}

// --- Projects ---

// ListProjects возвращает все проекты.
func (c *Client) ListProjects(ctx context.Context) ([]ProjectResponse, error) {
	var projects []ProjectResponse
	_, err := c.list(ctx, "/api/v1/projects", nil, &projects)
	return projects, err
}

// CreateProject создаёт проект.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*ProjectResponse, error) {
	var p ProjectResponse
	err := c.post(ctx, "/api/v1/projects", req, &p)
	return &p, err
}

// GetProject возвращает проект по ID или slug.
func (c *Client) GetProject(ctx context.Context, project string) (*ProjectResponse, error) {
	var p ProjectResponse
	err := c.get(ctx, projectPath(project), &p)
	return &p, err
}

// DeleteProject удаляет проект.
func (c *Client) DeleteProject(ctx context.Context, project string) error {
	return c.delete(ctx, projectPath(project))
}

// --- Sources ---

// ListSources возвращает sources проекта.
func (c *Client) ListSources(ctx context.Context, project string) ([]SourceResponse, error) {
	var sources []SourceResponse
	_, err := c.list(ctx, projectPath(project)+"/sources", nil, &sources)
	return sources, err
}

// CreateSource регистрирует source.
func (c *Client) CreateSource(ctx context.Context, project string, req SourceRequest) (*SourceResponse, error) {
	var src SourceResponse
	err := c.post(ctx, projectPath(project)+"/sources", req, &src)
	return &src, err
}

// InferSchema выводит схему source. Nil — воркер не вернул схему.
func (c *Client) InferSchema(ctx context.Context, project, sourceID string, limit int) (*DatasetResponse, error) {
	path := projectPath(project) + "/sources/" + url.PathEscape(sourceID) + "/infer_schema"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var bronze *DatasetResponse
	err := c.post(ctx, path, nil, &bronze)
	return bronze, err
}

// --- Datasets ---

// ListDatasets возвращает datasets проекта. Пустой layer — все слои.
func (c *Client) ListDatasets(ctx context.Context, project, layer string) ([]DatasetResponse, error) {
	params := url.Values{}
	if layer != "" {
		params.Set("layer", layer)
	}
	var datasets []DatasetResponse
	_, err := c.list(ctx, projectPath(project)+"/datasets", params, &datasets)
	return datasets, err
}

// --- Mappings ---

// ListMappings возвращает mappings проекта.
func (c *Client) ListMappings(ctx context.Context, project string) ([]MappingResponse, error) {
	var mappings []MappingResponse
	_, err := c.list(ctx, projectPath(project)+"/mappings", nil, &mappings)
	return mappings, err
}

// UpsertMapping создаёт или обновляет mapping.
func (c *Client) UpsertMapping(ctx context.Context, project string, req MappingRequest) (*MappingResponse, error) {
	var m MappingResponse
	err := c.post(ctx, projectPath(project)+"/mappings", req, &m)
	return &m, err
}

// --- Pipelines ---

// ListPipelines возвращает pipelines проекта.
func (c *Client) ListPipelines(ctx context.Context, project string) ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	_, err := c.list(ctx, projectPath(project)+"/pipelines", nil, &pipelines)
	return pipelines, err
}

// CreatePipeline создаёт pipeline.
func (c *Client) CreatePipeline(ctx context.Context, project string, req CreatePipelineRequest) (*PipelineResponse, error) {
	var p PipelineResponse
	err := c.post(ctx, projectPath(project)+"/pipelines", req, &p)
	return &p, err
}

// DeletePipeline удаляет pipeline.
func (c *Client) DeletePipeline(ctx context.Context, project, id string) error {
	return c.delete(ctx, projectPath(project)+"/pipelines/"+url.PathEscape(id))
}

// --- Runs ---

// ListRuns возвращает runs проекта.
func (c *Client) ListRuns(ctx context.Context, project string, opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.PipelineID != "" {
		params.Set("pipeline_id", opts.PipelineID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	_, err := c.list(ctx, projectPath(project)+"/runs", params, &runs)
	return runs, err
}

// StartRun запускает pipeline и ждёт завершения run.
func (c *Client) StartRun(ctx context.Context, project, pipelineID string) (*RunResponse, error) {
	var run RunResponse
	body := map[string]string{"pipeline_id": pipelineID}
	err := c.doData(ctx, http.MethodPost, projectPath(project)+"/runs", body, &run)
	return &run, err
}

// GetRun возвращает run.
func (c *Client) GetRun(ctx context.Context, project, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(ctx, projectPath(project)+"/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ListRunErrors возвращает страницу error samples run и их общее число.
func (c *Client) ListRunErrors(ctx context.Context, project, runID string, limit, offset int) ([]ErrorSampleResponse, int, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var samples []ErrorSampleResponse
	total, err := c.list(ctx, projectPath(project)+"/runs/"+url.PathEscape(runID)+"/errors", params, &samples)
	return samples, total, err
}

// --- HTTP helpers ---

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		Field:   er.Error.Field,
	}
}
