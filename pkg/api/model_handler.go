package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mimir-aip/waterquality/pkg/mlmodel"
)

// ModelHandler handles model listing HTTP requests
type ModelHandler struct {
	service *mlmodel.Service
}

// NewModelHandler creates a new model handler
func NewModelHandler(service *mlmodel.Service) *ModelHandler {
	return &ModelHandler{
		service: service,
	}
}

// HandleHealth handles GET /api/health
func (h *ModelHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	available := 0
	if list, err := h.service.ListModels(); err == nil {
		available = len(list)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().UTC(),
		"models_available": available,
	})
}

// HandleList handles GET /api/models
func (h *ModelHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListModels()
	if err != nil {
		writeServiceError(w, "Failed to list models", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": list,
		"count":  len(list),
	})
}

// HandleGet handles GET /api/models/{version}
func (h *ModelHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	model, err := h.service.GetModel(mux.Vars(r)["version"])
	if err != nil {
		writeServiceError(w, "Failed to get model", err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}
