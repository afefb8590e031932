// medallion-api — control plane для bronze/silver/gold pipelines.
//
// Сервис:
//   - Хранит проекты, sources, datasets, mappings и pipelines в PostgreSQL
//   - Выводит bronze-схемы через ETL-воркер
//   - Выполняет runs: bronze→silver, затем silver→gold
//   - Публикует события runs в RabbitMQ (если задан RABBITMQ_URL)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/api"
	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/config"
	"github.com/shaiso/medallion/internal/mq"
	"github.com/shaiso/medallion/internal/orchestrator"
	"github.com/shaiso/medallion/internal/repo"
	"github.com/shaiso/medallion/internal/telemetry"
	"github.com/shaiso/medallion/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), config.Usage())
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("medallion-api failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting medallion-api")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, repo.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected", zap.String("url", telemetry.RedactURL(cfg.Database.URL)))

	if cfg.Database.Migrate {
		if err := repo.Migrate(pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Репозитории
	projectRepo := repo.NewProjectRepo(pool)
	sourceRepo := repo.NewSourceRepo(pool)
	datasetRepo := repo.NewDatasetRepo(pool)
	mappingRepo := repo.NewMappingRepo(pool)
	pipelineRepo := repo.NewPipelineRepo(pool)
	runRepo := repo.NewRunRepo(pool)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	workerClient := worker.NewHTTPClient(worker.Config{
		BaseURL:        cfg.Worker.URL,
		RequestTimeout: cfg.Worker.RequestTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})

	// RabbitMQ
	var events orchestrator.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, "medallion-api", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, run events disabled", zap.Error(err))
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", zap.Error(err))
			}
			mqConn.OnReconnect(mq.SetupTopology)
			events = mq.NewPublisher(mqConn, logger)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Projects:     projectRepo,
		Sources:      sourceRepo,
		Datasets:     datasetRepo,
		Mappings:     mappingRepo,
		Pipelines:    pipelineRepo,
		Runs:         runRepo,
		Worker:       workerClient,
		Events:       events,
		Metrics:      metrics,
		StageTimeout: cfg.Worker.StageTimeout,
		Logger:       logger,
	})

	// Runs, прерванные остановкой прошлого процесса, иначе навсегда заняли бы свои pipelines.
	if n, err := orch.Reconcile(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("interrupted runs marked as failed", zap.Int("runs", n))
	}

	svc := catalog.New(catalog.Config{
		Projects:            projectRepo,
		Sources:             sourceRepo,
		Datasets:            datasetRepo,
		Mappings:            mappingRepo,
		Pipelines:           pipelineRepo,
		Runs:                runRepo,
		Inferrer:            workerClient,
		DefaultWarehouseURI: cfg.Warehouse.DefaultURI,
		Logger:              logger,
	})

	handler := api.NewHandler(api.Config{
		Catalog: svc,
		Runs:    orch,
		Health: func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		Metrics: metrics,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	// Runs выполняются внутри запроса, поэтому даём им время завершиться.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("stopped")
	return nil
}
