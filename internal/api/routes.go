package api

import (
	"net/http"

	"go.uber.org/zap"
)

const projectPath = "/api/v1/projects/{project}"

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Metrics(h.metrics),
		Logging(h.logger),
	)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	mux.HandleFunc("GET /healthz", h.Healthz)

	// Projects
	handle("GET /api/v1/projects", h.ListProjects)
	handle("POST /api/v1/projects", h.CreateProject)
	handle("GET "+projectPath, h.GetProject)
	handle("DELETE "+projectPath, h.DeleteProject)

	// Sources
	handle("GET "+projectPath+"/sources", h.ListSources)
	handle("POST "+projectPath+"/sources", h.CreateSource)
	handle("GET "+projectPath+"/sources/{source}", h.GetSource)
	handle("PUT "+projectPath+"/sources/{source}", h.UpdateSource)
	handle("DELETE "+projectPath+"/sources/{source}", h.DeleteSource)
	handle("POST "+projectPath+"/sources/{source}/infer_schema", h.InferSchema)

	// Datasets
	handle("GET "+projectPath+"/datasets", h.ListDatasets)
	handle("GET "+projectPath+"/datasets/{dataset}", h.GetDataset)
	handle("PUT "+projectPath+"/silver", h.PutSilver)
	handle("POST "+projectPath+"/silver/seed-from-source/{source}", h.SeedSilver)
	handle("POST "+projectPath+"/gold", h.CreateGold)
	handle("PUT "+projectPath+"/gold/{dataset}", h.UpdateGold)
	handle("DELETE "+projectPath+"/gold/{dataset}", h.DeleteGold)

	// Mappings
	handle("GET "+projectPath+"/mappings", h.ListMappings)
	handle("POST "+projectPath+"/mappings", h.UpsertMapping)
	handle("GET "+projectPath+"/mappings/{mapping}", h.GetMapping)
	handle("PUT "+projectPath+"/mappings/{mapping}", h.UpdateMapping)
	handle("DELETE "+projectPath+"/mappings/{mapping}", h.DeleteMapping)

	// Pipelines
	handle("GET "+projectPath+"/pipelines", h.ListPipelines)
	handle("POST "+projectPath+"/pipelines", h.CreatePipeline)
	handle("GET "+projectPath+"/pipelines/{pipeline}", h.GetPipeline)
	handle("PUT "+projectPath+"/pipelines/{pipeline}", h.UpdatePipeline)
	handle("DELETE "+projectPath+"/pipelines/{pipeline}", h.DeletePipeline)

	// Runs
	handle("GET "+projectPath+"/runs", h.ListRuns)
	handle("POST "+projectPath+"/runs", h.StartRun)
	handle("GET "+projectPath+"/runs/{run}", h.GetRun)
	handle("GET "+projectPath+"/runs/{run}/errors", h.ListRunErrors)
}

// Healthz отвечает 200, если зависимости доступны.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "unavailable")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
