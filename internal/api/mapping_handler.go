package api

import (
	"net/http"

	"github.com/shaiso/medallion/internal/catalog"
)

// ListMappings возвращает mappings проекта.
// GET /api/v1/projects/{project}/mappings
func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	mappings, err := h.catalog.ListMappings(r.Context(), p.ID)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, mappings, len(mappings))
}

// UpsertMapping создаёт mapping или обновляет существующий для той же пары datasets.
// POST /api/v1/projects/{project}/mappings
func (h *Handler) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req MappingRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	m, err := h.catalog.UpsertMapping(r.Context(), p.ID, catalog.MappingInput{
		FromDatasetID: req.FromDatasetID,
		ToDatasetID:   req.ToDatasetID,
		Transforms:    req.Transforms,
		DQRules:       req.DQRules,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, m)
}

// GetMapping возвращает mapping.
// GET /api/v1/projects/{project}/mappings/{mapping}
func (h *Handler) GetMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "mapping")
	if HandleError(w, h.logger, err, "") {
		return
	}

	m, err := h.catalog.GetMapping(r.Context(), p.ID, id)
	if HandleError(w, h.logger, err, "mapping not found") {
		return
	}
	Success(w, m)
}

// UpdateMapping частично изменяет mapping.
// PUT /api/v1/projects/{project}/mappings/{mapping}
func (h *Handler) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "mapping")
	if HandleError(w, h.logger, err, "") {
		return
	}
	var req UpdateMappingRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	m, err := h.catalog.UpdateMapping(r.Context(), p.ID, id, catalog.MappingPatch{
		FromDatasetID: req.FromDatasetID,
		ToDatasetID:   req.ToDatasetID,
		Transforms:    req.Transforms,
		DQRules:       req.DQRules,
	})
	if HandleError(w, h.logger, err, "mapping not found") {
		return
	}
	Success(w, m)
}

// DeleteMapping удаляет mapping.
// DELETE /api/v1/projects/{project}/mappings/{mapping}
func (h *Handler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "mapping")
	if HandleError(w, h.logger, err, "") {
		return
	}
	if HandleError(w, h.logger, h.catalog.DeleteMapping(r.Context(), p.ID, id), "mapping not found") {
		return
	}
	NoContent(w)
}
