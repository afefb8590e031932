package api

import (
	"net/http"

	"github.com/shaiso/medallion/internal/catalog"
	"github.com/shaiso/medallion/internal/domain"
)

// project находит проект из {project}. При ошибке ответ уже отправлен.
func (h *Handler) project(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	p, err := h.catalog.ResolveProject(r.Context(), r.PathValue("project"))
	if HandleError(w, h.logger, err, "project not found") {
		return nil, false
	}
	return p, true
}

// ListProjects возвращает все проекты.
// GET /api/v1/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.catalog.ListProjects(r.Context())
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, projects, len(projects))
}

// CreateProject создаёт проект.
// POST /api/v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if HandleError(w, h.logger, decode(w, r, &req), "") {
		return
	}

	p, err := h.catalog.CreateProject(r.Context(), catalog.ProjectInput{
		Slug:         req.Slug,
		WarehouseURI: req.WarehouseURI,
		Namespace:    req.Namespace,
	})
	if HandleError(w, h.logger, err, "") {
		return
	}
	Created(w, p)
}

// GetProject возвращает проект.
// GET /api/v1/projects/{project}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	Success(w, p)
}

// DeleteProject удаляет проект со всем содержимым.
// DELETE /api/v1/projects/{project}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	p, ok := h.project(w, r)
	if !ok {
		return
	}
	if HandleError(w, h.logger, h.catalog.DeleteProject(r.Context(), p.ID), "project not found") {
		return
	}
	NoContent(w)
}
