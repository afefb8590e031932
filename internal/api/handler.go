package api

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/telemetry"
)

// RunStarter запускает pipeline. Реализация: orchestrator.Orchestrator.
type RunStarter interface {
	StartRun(ctx context.Context, projectID, pipelineID uuid.UUID) (*domain.Run, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	catalog *catalog.Service
	runs    RunStarter
	health  func(ctx context.Context) error
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Catalog *catalog.Service
	Runs    RunStarter
	// Health проверяет зависимости для /healthz. Nil — всегда ok.
	Health  func(ctx context.Context) error
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		catalog: cfg.Catalog,
		runs:    cfg.Runs,
		health:  cfg.Health,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}
