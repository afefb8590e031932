package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики сервиса.
//
// Методы безопасно вызывать на nil *Metrics: компоненты в тестах
// работают без метрик.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	InterruptedRuns    prometheus.Counter
	StageDuration      *prometheus.HistogramVec
	WorkerRequests     *prometheus.CounterVec
	ErrorSamplesTotal  *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medallion_runs_total",
			Help: "Terminal pipeline runs by state",
		}, []string{"state"}),
		InterruptedRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "medallion_runs_interrupted_total",
			Help: "Runs left running without an owner and failed on recovery",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medallion_run_stage_duration_seconds",
			Help:    "Duration of worker stage calls",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 7200},
		}, []string{"stage", "outcome"}),
		WorkerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medallion_worker_requests_total",
			Help: "Worker client calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		ErrorSamplesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medallion_error_samples_total",
			Help: "Persisted run error samples by stage",
		}, []string{"stage"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medallion_api_http_requests_total",
			Help: "API requests by method and status",
		}, []string{"method", "status"}),
		HTTPRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medallion_api_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RunFinished учитывает терминальный run.
func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
}

// RunsInterrupted учитывает runs, завершённые как interrupted.
func (m *Metrics) RunsInterrupted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.InterruptedRuns.Add(float64(n))
}

// StageObserved учитывает вызов воркера для этапа.
func (m *Metrics) StageObserved(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// WorkerRequest учитывает запрос к воркеру.
func (m *Metrics) WorkerRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.WorkerRequests.WithLabelValues(endpoint, outcome).Inc()
}

// ErrorSamplesSaved учитывает сохранённые образцы ошибок.
func (m *Metrics) ErrorSamplesSaved(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ErrorSamplesTotal.WithLabelValues(stage).Add(float64(n))
}

// HTTPRequest учитывает запрос к API.
func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestLatency.WithLabelValues(method).Observe(d.Seconds())
}
