package api

import (
	"net/http"

	"github.com/shaiso/medallion/internal/catalog"
)

// ListPipelines возвращает pipelines проекта.
// GET /api/v1/projects/{project}/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	pipelines, err := h.catalog.ListPipelines(r.Context(), p.ID)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, pipelines, len(pipelines))
}

// CreatePipeline создаёт pipeline.
// POST /api/v1/projects/{project}/pipelines
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req CreatePipelineRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	pipeline, err := h.catalog.CreatePipeline(r.Context(), p.ID, catalog.PipelineInput{
		Name:            req.Name,
		SilverMappingID: req.SilverMappingID,
		GoldMappingID:   req.GoldMappingID,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, pipeline)
}

// GetPipeline возвращает pipeline.
// GET /api/v1/projects/{project}/pipelines/{pipeline}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "pipeline")
	if HandleError(w, h.logger, err, "") {
		return
	}

	pipeline, err := h.catalog.GetPipeline(r.Context(), p.ID, id)
	if HandleError(w, h.logger, err, "pipeline not found") {
		return
	}
	Success(w, pipeline)
}

// UpdatePipeline изменяет pipeline.
// PUT /api/v1/projects/{project}/pipelines/{pipeline}
func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "pipeline")
	if HandleError(w, h.logger, err, "") {
		return
	}
	var req UpdatePipelineRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	pipeline, err := h.catalog.UpdatePipeline(r.Context(), p.ID, id, req.patch())
	if HandleError(w, h.logger, err, "pipeline not found") {
		return
	}
	Success(w, pipeline)
}

// DeletePipeline удаляет pipeline вместе с его runs.
// DELETE /api/v1/projects/{project}/pipelines/{pipeline}
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "pipeline")
	if HandleError(w, h.logger, err, "") {
		return
	}
	if HandleError(w, h.logger, h.catalog.DeletePipeline(r.Context(), p.ID, id), "pipeline not found") {
		return
	}
	NoContent(w)
}
