package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/medallion/internal/domain"
	"github.com/shaiso/medallion/internal/repo"
)

// ListRuns возвращает runs проекта, новые первыми.
// GET /api/v1/projects/{project}/runs?pipeline_id=...&state=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}

	page, err := queryPage(r)
	if HandleError(w, h.logger, err, "") {
		return
	}
	filter := repo.RunFilter{ProjectID: p.ID, Page: page}

	if raw := r.URL.Query().Get("pipeline_id"); raw != "" {
		pipelineID, err := uuid.Parse(raw)
		if err != nil {
			BadRequest(w, "invalid pipeline_id")
			return
		}
		filter.PipelineID = &pipelineID
	}
	if raw := r.URL.Query().Get("state"); raw != "" {
		state := domain.RunState(raw)
		if !state.IsValid() {
			ValidationFailed(w, domain.Invalid("state", "unknown run state %q", raw))
			return
		}
		filter.State = state
	}

	runs, err := h.catalog.ListRuns(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}
	List(w, result, len(result))
}

// StartRun запускает pipeline синхронно и возвращает завершённый run.
// POST /api/v1/projects/{project}/runs
//
// Упавший run — тоже 201: неудача выполнения записана в самом run.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req StartRunRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	run, err := h.runs.StartRun(r.Context(), p.ID, req.PipelineID)
	if HandleError(w, h.logger, err, "pipeline not found") {
		return
	}
	Created(w, RunFromDomain(*run))
}

// GetRun возвращает run.
// GET /api/v1/projects/{project}/runs/{run}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "run")
	if HandleError(w, h.logger, err, "") {
		return
	}

	run, err := h.catalog.GetRun(r.Context(), p.ID, id)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}
	Success(w, RunFromDomain(*run))
}

// ListRunErrors возвращает страницу error samples run.
// GET /api/v1/projects/{project}/runs/{run}/errors?limit=...&offset=...
func (h *Handler) ListRunErrors(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "run")
	if HandleError(w, h.logger, err, "") {
		return
	}
	page, err := queryPage(r)
	if HandleError(w, h.logger, err, "") {
		return
	}

	samples, total, err := h.catalog.ListRunErrors(r.Context(), p.ID, id, page)
	if HandleError(w, h.logger, err, "run not found") {
		return
	}

	result := make([]ErrorSampleResponse, len(samples))
	for i, s := range samples {
		result[i] = ErrorSampleFromDomain(s)
	}
	List(w, result, total)
}
