package api

import (
	"errors"
	"net/http"

	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/mlmodel"
)

// DashboardHandler serves the dashboard views of training and prediction history
type DashboardHandler struct {
	service *mlmodel.Service
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service *mlmodel.Service) *DashboardHandler {
	return &DashboardHandler{
		service: service,
	}
}

// HandleLatestTraining handles GET /api/dashboard/latest-training
func (h *DashboardHandler) HandleLatestTraining(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.LatestTraining()
	if errors.Is(err, metadatastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No training data available", nil)
		return
	}
	if err != nil {
		writeServiceError(w, "Failed to load latest training", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleLatestPrediction handles GET /api/dashboard/latest-prediction
func (h *DashboardHandler) HandleLatestPrediction(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.LatestPrediction()
	if errors.Is(err, metadatastore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No prediction data available", nil)
		return
	}
	if err != nil {
		writeServiceError(w, "Failed to load latest prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleTrainingHistory handles GET /api/dashboard/training-history
func (h *DashboardHandler) HandleTrainingHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.TrainingHistory()
	if err != nil {
		writeServiceError(w, "Failed to load training history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": runs,
		"count":   len(runs),
	})
}

// HandleSummary handles GET /api/dashboard/summary
func (h *DashboardHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary()
	if err != nil {
		writeServiceError(w, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
