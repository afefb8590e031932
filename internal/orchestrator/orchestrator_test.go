package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
	"github.com/shaiso/medallion/internal/telemetry"
	"github.com/shaiso/medallion/internal/testutil/memstore"
	"github.com/shaiso/medallion/internal/worker"
)

// stubWorker отвечает на /run по слою целевого dataset.
type stubWorker struct {
	mu    sync.Mutex
	calls []domain.Stage
	jobs  []*worker.JobDescription

	silver func(ctx context.Context) (*worker.RunResult, error)
	gold   func(ctx context.Context) (*worker.RunResult, error)
}

func (w *stubWorker) InferSchema(context.Context, worker.InferSchemaRequest) (*worker.InferSchemaResult, error) {
	return &worker.InferSchemaResult{}, nil
}

func (w *stubWorker) Run(ctx context.Context, job *worker.JobDescription) (*worker.RunResult, error) {
	stage := domain.StageGold
	if job.Datasets[1].Layer() == domain.LayerSilver {
		stage = domain.StageSilver
	}

	w.mu.Lock()
	w.calls = append(w.calls, stage)
	w.jobs = append(w.jobs, job)
	w.mu.Unlock()

	fn := w.gold
	if stage == domain.StageSilver {
		fn = w.silver
	}
	if fn == nil {
		return &worker.RunResult{}, nil
	}
	return fn(ctx)
}

func (w *stubWorker) Calls() []domain.Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Stage(nil), w.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []domain.RunState
}

func (p *recordingPublisher) PublishRunEvent(_ context.Context, run *domain.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, run.State)
	return nil
}

func ptr[T any](v T) *T { return &v }

func samples(n int) []worker.ErrorSample {
	out := make([]worker.ErrorSample, n)
	for i := range out {
		out[i] = worker.ErrorSample{
			ReasonCode:   "DQ_FAILED",
			Message:      fmt.Sprintf("row %d rejected", i+1),
			RowNo:        ptr(int64(i + 1)),
			SourceValues: json.RawMessage(`{"amount":"-1"}`),
		}
	}
	return out
}

type env struct {
	store    *memstore.Store
	project  *domain.Project
	source   *domain.Source
	bronze   *domain.Dataset
	silver   *domain.Dataset
	gold     *domain.Dataset
	m1, m2   *domain.Mapping
	pipeline *domain.Pipeline
}

func newEnv(t *testing.T, withGold bool) *env {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	now := time.Now().UTC()

	e := &env{store: s}
	e.project = &domain.Project{ID: uuid.New(), Slug: "p", WarehouseURI: "file:///warehouse", Namespace: "default", CreatedAt: now}
	require.NoError(t, s.Projects().Create(ctx, e.project))

	e.source = &domain.Source{ID: uuid.New(), ProjectID: e.project.ID, Name: "sales", URI: "/data/sales.csv",
		Config: domain.SourceConfig{}.WithDefaults()}
	require.NoError(t, s.Sources().Create(ctx, e.source))

	schema := []domain.Field{{Name: "id", Type: "str"}, {Name: "amount", Type: "f64"}}
	e.bronze = &domain.Dataset{ID: uuid.New(), ProjectID: e.project.ID, SourceID: &e.source.ID, Name: "sales", Layer: domain.LayerBronze, Schema: schema}
	e.silver = &domain.Dataset{ID: uuid.New(), ProjectID: e.project.ID, Name: domain.SilverDatasetName, Layer: domain.LayerSilver, Schema: schema, PrimaryKey: []string{"id"}}
	e.gold = &domain.Dataset{ID: uuid.New(), ProjectID: e.project.ID, Name: "daily_totals", Layer: domain.LayerGold, Schema: schema, PrimaryKey: []string{"id"}}
	for _, d := range []*domain.Dataset{e.bronze, e.silver, e.gold} {
		require.NoError(t, s.Datasets().Upsert(ctx, d))
	}

	transforms := domain.Transforms{Columns: []domain.TargetColumn{{Target: "id", Expr: json.RawMessage(`{"col":"id"}`)}}}
	e.m1 = &domain.Mapping{ID: uuid.New(), ProjectID: e.project.ID, FromDatasetID: e.bronze.ID, ToDatasetID: e.silver.ID, Transforms: transforms}
	e.m2 = &domain.Mapping{ID: uuid.New(), ProjectID: e.project.ID, FromDatasetID: e.silver.ID, ToDatasetID: e.gold.ID, Transforms: transforms}
	require.NoError(t, s.Mappings().Upsert(ctx, e.m1))
	require.NoError(t, s.Mappings().Upsert(ctx, e.m2))

	e.pipeline = &domain.Pipeline{ID: uuid.New(), ProjectID: e.project.ID, Name: "daily", SilverMappingID: &e.m1.ID}
	if withGold {
		e.pipeline.GoldMappingID = &e.m2.ID
	}
	require.NoError(t, s.Pipelines().Create(ctx, e.pipeline))
	return e
}

func (e *env) orchestrator(w worker.Client, opts ...func(*Config)) *Orchestrator {
	cfg := Config{
		Projects:  e.store.Projects(),
		Sources:   e.store.Sources(),
		Datasets:  e.store.Datasets(),
		Mappings:  e.store.Mappings(),
		Pipelines: e.store.Pipelines(),
		Runs:      e.store.Runs(),
		Worker:    w,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func (e *env) persisted(t *testing.T, runID uuid.UUID) *domain.Run {
	t.Helper()
	run, err := e.store.Runs().GetByID(context.Background(), e.project.ID, runID)
	require.NoError(t, err)
	return run
}

func TestStartRun_SilverOnlyScenario(t *testing.T) {
	e := newEnv(t, false)
	w := &stubWorker{silver: func(context.Context) (*worker.RunResult, error) {
		return &worker.RunResult{
			OriRows: ptr(int64(100)), DestRows: ptr(int64(95)), RejectedRows: ptr(int64(5)),
			Snapshot: ptr("snap1"), DQSummary: map[string]any{}, ErrorSamples: samples(5),
		}, nil
	}}

	run, err := e.orchestrator(w).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateSucceeded, run.State)
	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.RunStateSucceeded, got.State)
	assert.EqualValues(t, 100, *got.RowsSource)
	assert.EqualValues(t, 95, *got.RowsSilver)
	assert.EqualValues(t, 5, *got.RowsSourceRejected)
	assert.Equal(t, "snap1", *got.SilverSnapshot)
	assert.Nil(t, got.RowsGold)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, 5, e.store.Runs().SampleCount(run.ID, domain.StageSilver))
	assert.Equal(t, []domain.Stage{domain.StageSilver}, w.Calls())

	job := w.jobs[0]
	bronze, ok := job.Datasets[0].(worker.BronzeDescriptor)
	require.True(t, ok)
	assert.Equal(t, "/data/sales.csv", bronze.URI)
	assert.Equal(t, "default", job.Project.Namespace)
}

func TestStartRun_BothStagesMergeDQ(t *testing.T) {
	e := newEnv(t, true)
	w := &stubWorker{
		silver: func(context.Context) (*worker.RunResult, error) {
			return &worker.RunResult{
				OriRows: ptr(int64(10)), DestRows: ptr(int64(9)), RejectedRows: ptr(int64(1)),
				DQSummary: map[string]any{"not_null_id": float64(0), "positive_amount": float64(1)},
				Logs:      []string{"silver ok"},
			}, nil
		},
		gold: func(context.Context) (*worker.RunResult, error) {
			return &worker.RunResult{
				DestRows: ptr(int64(3)), Snapshot: ptr("g1"),
				DQSummary: map[string]any{"positive_amount": float64(0)},
				Logs:      []string{"gold ok"},
			}, nil
		},
	}
	events := &recordingPublisher{}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	run, err := e.orchestrator(w, func(c *Config) {
		c.Events = events
		c.Metrics = metrics
	}).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.RunStateSucceeded, got.State)
	assert.NotNil(t, got.RowsSource)
	assert.NotNil(t, got.RowsSilver)
	assert.EqualValues(t, 3, *got.RowsGold)
	assert.Equal(t, map[string]any{"not_null_id": float64(0), "positive_amount": float64(0)}, got.DQSummary)
	assert.Equal(t, []string{"silver ok", "gold ok"}, got.Logs)
	assert.Equal(t, []domain.Stage{domain.StageSilver, domain.StageGold}, got.CompletedStages)
	assert.Equal(t, []domain.Stage{domain.StageSilver, domain.StageGold}, w.Calls())

	assert.Equal(t, []domain.RunState{domain.RunStateRunning, domain.RunStateSucceeded}, events.states)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("succeeded")))
}

func TestStartRun_SilverFailureSkipsGold(t *testing.T) {
	e := newEnv(t, true)
	w := &stubWorker{silver: func(context.Context) (*worker.RunResult, error) {
		return nil, fmt.Errorf("%w: HTTP 500: boom", worker.ErrRemoteStatus)
	}}

	run, err := e.orchestrator(w).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Contains(t, got.StateReason, "HTTP 500")
	assert.Equal(t, domain.FailureWorkerError, got.FailureCode)
	assert.Equal(t, domain.StageSilver, got.FailedStage)
	assert.Equal(t, []domain.Stage{domain.StageSilver}, w.Calls())
	assert.Nil(t, got.RowsGold)
	assert.Empty(t, got.CompletedStages)
}

func TestStartRun_GoldFailureKeepsSilverMetrics(t *testing.T) {
	e := newEnv(t, true)
	w := &stubWorker{
		silver: func(context.Context) (*worker.RunResult, error) {
			return &worker.RunResult{
				OriRows: ptr(int64(100)), DestRows: ptr(int64(95)), Snapshot: ptr("snap1"),
				ErrorSamples: samples(2),
			}, nil
		},
		gold: func(context.Context) (*worker.RunResult, error) {
			return nil, fmt.Errorf("%w: connection refused", worker.ErrRequest)
		},
	}

	run, err := e.orchestrator(w).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, domain.StageGold, got.FailedStage)
	assert.Equal(t, domain.FailureWorkerError, got.FailureCode)
	require.NotNil(t, got.RowsSilver)
	assert.EqualValues(t, 95, *got.RowsSilver)
	assert.Equal(t, "snap1", *got.SilverSnapshot)
	assert.Equal(t, []domain.Stage{domain.StageSilver}, got.CompletedStages)
	assert.Equal(t, 2, e.store.Runs().SampleCount(run.ID, domain.StageSilver))
}

func TestStartRun_CapsErrorSamples(t *testing.T) {
	e := newEnv(t, true)
	w := &stubWorker{
		silver: func(context.Context) (*worker.RunResult, error) {
			return &worker.RunResult{ErrorSamples: samples(1500)}, nil
		},
		gold: func(context.Context) (*worker.RunResult, error) {
			return &worker.RunResult{ErrorSamples: samples(1001)}, nil
		},
	}

	run, err := e.orchestrator(w).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.MaxErrorSamplesPerStage, e.store.Runs().SampleCount(run.ID, domain.StageSilver))
	assert.Equal(t, domain.MaxErrorSamplesPerStage, e.store.Runs().SampleCount(run.ID, domain.StageGold))
}

func TestStartRun_StageTimeout(t *testing.T) {
	e := newEnv(t, false)
	w := &stubWorker{silver: func(ctx context.Context) (*worker.RunResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	run, err := e.orchestrator(w, func(c *Config) { c.StageTimeout = 20 * time.Millisecond }).
		StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateFailed, run.State)
	assert.Equal(t, domain.FailureTimedOut, run.FailureCode)
	assert.Equal(t, domain.FailureTimedOut, e.persisted(t, run.ID).FailureCode)
}

func TestStartRun_SaveStageFailure(t *testing.T) {
	e := newEnv(t, true)
	e.store.FailSaveStage(errors.New("disk full"))
	w := &stubWorker{}

	run, err := e.orchestrator(w).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, domain.FailureInternal, got.FailureCode)
	assert.Contains(t, got.StateReason, "disk full")
	assert.Empty(t, run.CompletedStages)
	assert.Equal(t, []domain.Stage{domain.StageSilver}, w.Calls())
}

func TestStartRun_EmptyPipeline(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	empty := &domain.Pipeline{ID: uuid.New(), ProjectID: e.project.ID, Name: "empty"}
	require.NoError(t, e.store.Pipelines().Create(ctx, empty))

	_, err := e.orchestrator(&stubWorker{}).StartRun(ctx, e.project.ID, empty.ID)
	require.ErrorIs(t, err, ErrEmptyPipeline)
	verr, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "pipeline_id", verr.Field)

	runs, err := e.store.Runs().List(ctx, repo.RunFilter{ProjectID: e.project.ID})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStartRun_RevalidatesStaleMapping(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	// gold mapping перенаправлен на bronze → silver после сохранения pipeline
	stale := *e.m2
	stale.FromDatasetID = e.bronze.ID
	stale.ToDatasetID = e.gold.ID
	require.NoError(t, e.store.Mappings().Update(ctx, &stale))

	w := &stubWorker{}
	_, err := e.orchestrator(w).StartRun(ctx, e.project.ID, e.pipeline.ID)
	verr, ok := domain.AsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "mapping_gold_id", verr.Field)
	assert.Empty(t, w.Calls())

	runs, err := e.store.Runs().List(ctx, repo.RunFilter{ProjectID: e.project.ID})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStartRun_PipelineNotFound(t *testing.T) {
	e := newEnv(t, false)
	_, err := e.orchestrator(&stubWorker{}).StartRun(context.Background(), e.project.ID, uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestStartRun_RejectsConcurrentRun(t *testing.T) {
	e := newEnv(t, false)
	started := make(chan struct{})
	release := make(chan struct{})
	w := &stubWorker{silver: func(context.Context) (*worker.RunResult, error) {
		close(started)
		<-release
		return &worker.RunResult{DestRows: ptr(int64(1))}, nil
	}}
	o := e.orchestrator(w)

	done := make(chan *domain.Run, 1)
	go func() {
		run, err := o.StartRun(context.Background(), e.project.ID, e.pipeline.ID)
		assert.NoError(t, err)
		done <- run
	}()

	<-started
	runID, active := o.ActiveRun(e.pipeline.ID)
	assert.True(t, active)

	_, err := o.StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	assert.ErrorIs(t, err, ErrRunAlreadyActive)

	close(release)
	run := <-done
	require.NotNil(t, run)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, domain.RunStateSucceeded, run.State)
	assert.Zero(t, o.ActiveRunsCount())
}

func TestStartRun_RejectsRunActiveElsewhere(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	w := &stubWorker{}
	o := e.orchestrator(w)

	// run, начатый после старта этого экземпляра, считается живым
	live := domain.NewRun(e.project.ID, e.pipeline.ID)
	require.NoError(t, e.store.Runs().CreateRunning(ctx, live))

	_, err := o.StartRun(ctx, e.project.ID, e.pipeline.ID)
	assert.ErrorIs(t, err, ErrRunAlreadyActive)
	assert.Empty(t, w.Calls())
	assert.Equal(t, domain.RunStateRunning, e.persisted(t, live.ID).State)
}

func (e *env) runs(t *testing.T) []domain.Run {
	t.Helper()
	runs, err := e.store.Runs().List(context.Background(), repo.RunFilter{ProjectID: e.project.ID, PipelineID: &e.pipeline.ID})
	require.NoError(t, err)
	return runs
}

func fastFinish(o *Orchestrator) *Orchestrator {
	o.finishBackoff = time.Millisecond
	return o
}

func TestStartRun_RetriesFinish(t *testing.T) {
	e := newEnv(t, false)
	e.store.FailFinish(errors.New("connection reset"), finishAttempts-1)

	run, err := fastFinish(e.orchestrator(&stubWorker{})).StartRun(context.Background(), e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateSucceeded, run.State)
	assert.Equal(t, domain.RunStateSucceeded, e.persisted(t, run.ID).State)
}

func TestStartRun_UnfinishedRunDoesNotLockPipeline(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()
	o := fastFinish(e.orchestrator(&stubWorker{}))

	e.store.FailFinish(errors.New("connection reset"), -1)
	_, err := o.StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunAlreadyActive)

	runs := e.runs(t)
	require.Len(t, runs, 1)
	first := runs[0]
	assert.Equal(t, domain.RunStateRunning, first.State)

	e.store.FailFinish(nil, 0)
	second, err := o.StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateSucceeded, second.State)
	// итог первого run дописан, а не потерян
	assert.Equal(t, domain.RunStateSucceeded, e.persisted(t, first.ID).State)
	assert.Zero(t, o.ActiveRunsCount())
}

func TestStartRun_AfterRestartReclaimsStuckRun(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	e.store.FailFinish(errors.New("connection reset"), -1)
	_, err := fastFinish(e.orchestrator(&stubWorker{})).StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.Error(t, err)
	stuck := e.runs(t)[0]

	// новый процесс, хранилище снова доступно
	e.store.FailFinish(nil, 0)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	restarted := e.orchestrator(&stubWorker{}, func(c *Config) { c.Metrics = metrics })
	restarted.startedAt = stuck.StartedAt.Add(time.Millisecond)

	run, err := restarted.StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateSucceeded, run.State)

	got := e.persisted(t, stuck.ID)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, domain.FailureInterrupted, got.FailureCode)
	assert.Equal(t, reasonOrphaned, got.StateReason)
	assert.NotNil(t, got.FinishedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InterruptedRuns))
}

func TestReconcile(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	stale := domain.NewRun(e.project.ID, e.pipeline.ID)
	require.NoError(t, e.store.Runs().CreateRunning(ctx, stale))

	o := e.orchestrator(&stubWorker{})
	o.startedAt = stale.StartedAt.Add(time.Millisecond)

	n, err := o.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := e.persisted(t, stale.ID)
	assert.Equal(t, domain.RunStateFailed, got.State)
	assert.Equal(t, domain.FailureInterrupted, got.FailureCode)
	assert.Equal(t, reasonRestarted, got.StateReason)

	n, err = o.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	run, err := o.StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateSucceeded, run.State)
}

func TestStartRun_CallerCanceled(t *testing.T) {
	e := newEnv(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &stubWorker{silver: func(stageCtx context.Context) (*worker.RunResult, error) {
		cancel()
		<-stageCtx.Done()
		return nil, fmt.Errorf("%w: POST /run: %v", worker.ErrRequest, stageCtx.Err())
	}}

	run, err := e.orchestrator(w).StartRun(ctx, e.project.ID, e.pipeline.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.RunStateFailed, run.State)
	assert.Equal(t, domain.FailureCanceled, run.FailureCode)
	assert.Equal(t, domain.StageSilver, run.FailedStage)

	got := e.persisted(t, run.ID)
	assert.Equal(t, domain.FailureCanceled, got.FailureCode)
	assert.Equal(t, []domain.Stage{domain.StageSilver}, w.Calls())
}

func TestClassifyStageError(t *testing.T) {
	background := context.Background()

	expired, cancelExpired := context.WithTimeout(background, -time.Second)
	defer cancelExpired()
	canceled, cancel := context.WithCancel(background)
	cancel()

	tests := []struct {
		name        string
		ctx         context.Context
		stageCtx    context.Context
		err         error
		wantCode    domain.FailureCode
		wantOutcome string
	}{
		{"worker status", background, background, worker.ErrRemoteStatus, domain.FailureWorkerError, outcomeError},
		{"worker timeout", background, background, worker.ErrTimeout, domain.FailureTimedOut, outcomeTimeout},
		{"stage deadline", background, expired, context.DeadlineExceeded, domain.FailureTimedOut, outcomeTimeout},
		{"caller canceled", canceled, canceled, context.Canceled, domain.FailureCanceled, outcomeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, outcome := classifyStageError(tt.ctx, tt.stageCtx, tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantOutcome, outcome)
		})
	}
}
