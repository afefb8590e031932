package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultRequestTimeout = 60 * time.Second

	// DefaultSampleLimit — размер выборки для вывода схемы по умолчанию.
	DefaultSampleLimit = 200
	// MaxSampleLimit — максимальный размер выборки для вывода схемы.
	MaxSampleLimit = 1000

	// maxResponseSize ограничивает тело ответа воркера.
	maxResponseSize = 64 << 20
)

// Client — граница RPC с внешним воркером.
type Client interface {
	// InferSchema выводит схему источника по выборке строк.
	InferSchema(ctx context.Context, req InferSchemaRequest) (*InferSchemaResult, error)

	// Run выполняет один этап целиком. Блокируется до ответа воркера
	// или до отмены ctx.
	Run(ctx context.Context, job *JobDescription) (*RunResult, error)
}

// InferSchemaRequest — тело POST /infer_schema.
type InferSchemaRequest struct {
	URI          string           `json:"uri"`
	SourceConfig SourceDescriptor `json:"source_config"`
	Limit        int              `json:"limit"`
}

// NewInferSchemaRequest строит запрос вывода схемы для source.
func NewInferSchemaRequest(src *domain.Source, limit int) InferSchemaRequest {
	return InferSchemaRequest{
		URI:          src.URI,
		SourceConfig: SourceDescriptor{Config: src.Config},
		Limit:        ClampSampleLimit(limit),
	}
}

// ClampSampleLimit приводит размер выборки к [1, MaxSampleLimit].
// Ноль — DefaultSampleLimit.
func ClampSampleLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultSampleLimit
	case limit < 1:
		return 1
	case limit > MaxSampleLimit:
		return MaxSampleLimit
	default:
		return limit
	}
}

// Config — конфигурация HTTPClient.
type Config struct {
	// BaseURL — адрес воркера (например, http://etl-worker:8088).
	BaseURL string

	// RequestTimeout — таймаут /infer_schema (default: 60s).
	// /run ограничивается только дедлайном ctx.
	RequestTimeout time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *telemetry.Metrics
}

// HTTPClient — реализация Client поверх HTTP/JSON.
type HTTPClient struct {
	baseURL        string
	requestTimeout time.Duration
	http           *http.Client
	logger         *zap.Logger
	metrics        *telemetry.Metrics
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient создаёт HTTPClient.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		requestTimeout: timeout,
		http:           httpClient,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

// InferSchema вызывает POST /infer_schema.
func (c *HTTPClient) InferSchema(ctx context.Context, req InferSchemaRequest) (*InferSchemaResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req.Limit = ClampSampleLimit(req.Limit)

	body, err := c.post(ctx, "/infer_schema", req)
	if err != nil {
		return nil, err
	}

	res, err := ParseInferSchemaResult(body)
	c.observe("infer_schema", err)
	return res, err
}

// Run вызывает POST /run.
func (c *HTTPClient) Run(ctx context.Context, job *JobDescription) (*RunResult, error) {
	body, err := c.post(ctx, "/run", job)
	if err != nil {
		return nil, err
	}

	res, err := ParseRunResult(body)
	c.observe("run", err)
	return res, err
}

// post отправляет JSON и возвращает тело 2xx-ответа.
func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	endpoint := strings.TrimPrefix(path, "/")

	data, err := json.Marshal(payload)
	if err != nil {
		c.observe(endpoint, err)
		return nil, fmt.Errorf("%w: marshal %s: %v", ErrRequest, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		c.observe(endpoint, err)
		return nil, fmt.Errorf("%w: create request: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		err = transportError(ctx, path, err)
		c.observe(endpoint, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		err = transportError(ctx, path, err)
		c.observe(endpoint, err)
		return nil, err
	}

	c.logger.Debug("worker call",
		zap.String("endpoint", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("%w: POST %s: HTTP %d: %s", ErrRemoteStatus, path, resp.StatusCode, truncate(string(body), 200))
		c.observe(endpoint, err)
		return nil, err
	}
	return body, nil
}

func (c *HTTPClient) observe(endpoint string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	c.metrics.WorkerRequest(endpoint, outcome)
}

// transportError различает истёкший дедлайн и прочие сбои транспорта.
func transportError(ctx context.Context, path string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: POST %s: %v", ErrTimeout, path, err)
	}
	return fmt.Errorf("%w: POST %s: %v", ErrRequest, path, err)
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
