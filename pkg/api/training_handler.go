package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/models"
)

// TrainingHandler handles dataset analysis and training HTTP requests
type TrainingHandler struct {
	service  *mlmodel.Service
	maxBytes int64
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(service *mlmodel.Service, maxBytes int64) *TrainingHandler {
	return &TrainingHandler{
		service:  service,
		maxBytes: maxBytes,
	}
}

// HandleAnalyze handles POST /api/analyze-dataset
func (h *TrainingHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	path, name, ok := receiveUpload(w, r, h.service, h.maxBytes)
	if !ok {
		return
	}

	analysis, err := h.service.Analyze(path)
	if err != nil {
		writeServiceError(w, "Failed to analyze dataset", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filename": name,
		"analysis": analysis,
	})
}

// HandleTrain handles POST /api/train. With ?async=true the run is queued
// and 202 is returned with the job.
func (h *TrainingHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	path, name, ok := receiveUpload(w, r, h.service, h.maxBytes)
	if !ok {
		return
	}
	req := &models.TrainRequest{DatasetPath: path, DatasetFile: name}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		priority, _ := strconv.Atoi(r.URL.Query().Get("priority"))
		job, err := h.service.Submit(req, priority)
		if err != nil {
			writeServiceError(w, "Failed to queue training", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"message":    "Training queued",
			"job":        job,
			"status_url": fmt.Sprintf("/api/training-jobs/%s", job.ID),
		})
		return
	}

	run, err := h.service.Train(r.Context(), req)
	if err != nil {
		writeServiceError(w, "Training failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Training completed successfully",
		"best_model":     run.BestModel.DisplayName(),
		"best_version":   run.BestVersion,
		"models_trained": run.ModelsTrained(),
		"training_run":   run,
	})
}

// HandleStatus handles GET /api/training-status
func (h *TrainingHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.State())
}

// HandleJob handles GET /api/training-jobs/{id}
func (h *TrainingHandler) HandleJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.service.GetJob(jobID)
	if err != nil {
		writeServiceError(w, "Job not found", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob handles DELETE /api/training-jobs/{id}. Only queued jobs
// can be cancelled.
func (h *TrainingHandler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.service.CancelJob(jobID)
	if err != nil {
		writeServiceError(w, "Failed to cancel job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Training job cancelled",
		"job":     job,
	})
}
