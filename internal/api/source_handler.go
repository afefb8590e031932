package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/medallion/internal/domain"
)

// ListSources возвращает sources проекта.
// GET /api/v1/projects/{project}/sources
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	sources, err := h.catalog.ListSources(r.Context(), p.ID)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, sources, len(sources))
}

// CreateSource регистрирует source.
// POST /api/v1/projects/{project}/sources
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req SourceRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	src, err := h.catalog.CreateSource(r.Context(), p.ID, req.input())
	if HandleError(w, h.logger, err, "project not found") {
		return
	}
	Created(w, src)
}

// GetSource возвращает source.
// GET /api/v1/projects/{project}/sources/{source}
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "source")
	if HandleError(w, h.logger, err, "") {
		return
	}

	src, err := h.catalog.GetSource(r.Context(), p.ID, id)
	if HandleError(w, h.logger, err, "source not found") {
		return
	}
	Success(w, src)
}

// UpdateSource заменяет source.
// PUT /api/v1/projects/{project}/sources/{source}
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "source")
	if HandleError(w, h.logger, err, "") {
		return
	}
	var req SourceRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	src, err := h.catalog.UpdateSource(r.Context(), p.ID, id, req.input())
	if HandleError(w, h.logger, err, "source not found") {
		return
	}
	Success(w, src)
}

// DeleteSource удаляет source и его bronze dataset.
// DELETE /api/v1/projects/{project}/sources/{source}
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "source")
	if HandleError(w, h.logger, err, "") {
		return
	}
	if HandleError(w, h.logger, h.catalog.DeleteSource(r.Context(), p.ID, id), "source not found") {
		return
	}
	NoContent(w)
}

// InferSchema выводит схему source воркером и сохраняет bronze dataset.
// POST /api/v1/projects/{project}/sources/{source}/infer_schema?limit=N
//
// Если воркер не вернул схему, ответ — {"data": null}.
func (h *Handler) InferSchema(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "source")
	if HandleError(w, h.logger, err, "") {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			ValidationFailed(w, domain.Invalid("limit", "limit must be an integer"))
			return
		}
	}

	bronze, err := h.catalog.InferBronzeSchema(r.Context(), p.ID, id, limit)
	if HandleError(w, h.logger, err, "source not found") {
		return
	}
	Success(w, bronze)
}
