package api

import (
	"net/http"

	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/domain"
)

// ListDatasets возвращает datasets проекта.
// GET /api/v1/projects/{project}/datasets?layer=
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}

	var layer domain.Layer
	if raw := r.URL.Query().Get("layer"); raw != "" {
		var err error
		if layer, err = domain.ParseLayer(raw); HandleError(w, h.logger, err, "") {
			return
		}
	}

	datasets, err := h.catalog.ListDatasets(r.Context(), p.ID, layer)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, datasets, len(datasets))
}

// GetDataset возвращает dataset.
// GET /api/v1/projects/{project}/datasets/{dataset}
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "dataset")
	if HandleError(w, h.logger, err, "") {
		return
	}

	d, err := h.catalog.GetDataset(r.Context(), p.ID, id)
	if HandleError(w, h.logger, err, "dataset not found") {
		return
	}
	Success(w, d)
}

// PutSilver создаёт или заменяет схему silver dataset.
// PUT /api/v1/projects/{project}/silver
func (h *Handler) PutSilver(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req SilverSchemaRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	silver, err := h.catalog.PutSilverSchema(r.Context(), p.ID, catalog.SchemaInput{
		Schema:     fields(req.Schema),
		PrimaryKey: req.PrimaryKey,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}
	Success(w, silver)
}

// SeedSilver копирует схему bronze dataset source в silver.
// POST /api/v1/projects/{project}/silver/seed-from-source/{source}
func (h *Handler) SeedSilver(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	sourceID, err := pathID(r, "source")
	if HandleError(w, h.logger, err, "") {
		return
	}

	silver, err := h.catalog.SeedSilverFromSource(r.Context(), p.ID, sourceID)
	if HandleError(w, h.logger, err, "source or its bronze dataset not found") {
		return
	}
	Success(w, silver)
}

// CreateGold создаёт gold dataset.
// POST /api/v1/projects/{project}/gold
func (h *Handler) CreateGold(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	var req CreateGoldRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	gold, err := h.catalog.CreateGold(r.Context(), p.ID, catalog.GoldInput{
		Name: req.Name,
		SchemaInput: catalog.SchemaInput{
			Schema:     fields(req.Schema),
			PrimaryKey: req.PrimaryKey,
		},
	})
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, gold)
}

// UpdateGold частично изменяет gold dataset.
// PUT /api/v1/projects/{project}/gold/{dataset}
func (h *Handler) UpdateGold(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "dataset")
	if HandleError(w, h.logger, err, "") {
		return
	}
	var req UpdateGoldRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	gold, err := h.catalog.UpdateGold(r.Context(), p.ID, id, catalog.GoldPatch{
		Name:       req.Name,
		Schema:     fields(req.Schema),
		PrimaryKey: req.PrimaryKey,
	})
	if HandleError(w, h.logger, err, "gold dataset not found") {
		return
	}
	Success(w, gold)
}

// DeleteGold удаляет gold dataset.
// DELETE /api/v1/projects/{project}/gold/{dataset}
func (h *Handler) DeleteGold(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "dataset")
	if HandleError(w, h.logger, err, "") {
		return
	}
	if HandleError(w, h.logger, h.catalog.DeleteGold(r.Context(), p.ID, id), "gold dataset not found") {
		return
	}
	NoContent(w)
}
