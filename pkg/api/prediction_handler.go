package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/models"
)

// PredictionHandler handles prediction HTTP requests
type PredictionHandler struct {
	service     *mlmodel.Service
	maxBytes    int64
	sampleLimit int
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(service *mlmodel.Service, maxBytes int64, sampleLimit int) *PredictionHandler {
	return &PredictionHandler{
		service:     service,
		maxBytes:    maxBytes,
		sampleLimit: sampleLimit,
	}
}

// HandlePredict handles POST /api/predict
// Form fields: file (CSV), model_name (optional), model_version (optional pin)
func (h *PredictionHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	path, name, ok := receiveUpload(w, r, h.service, h.maxBytes)
	if !ok {
		return
	}

	req := &models.PredictRequest{
		DatasetPath:  path,
		DatasetFile:  name,
		ModelVersion: r.FormValue("model_version"),
	}
	if modelName := r.FormValue("model_name"); modelName != "" {
		kind, err := models.ParseModelKind(modelName)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid model_name: %v", err), nil)
			return
		}
		req.ModelKind = kind
	}

	prediction, err := h.service.Predict(r.Context(), req)
	if err != nil {
		writeServiceError(w, "Prediction failed", err)
		return
	}

	run := prediction.Run
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":            "Predictions completed successfully",
		"model_used":         run.ModelName,
		"model_version":      run.ModelVersion,
		"total_predictions":  run.TotalPredictions,
		"failed_rows":        run.FailedRows,
		"statistics":         run.Statistics,
		"class_distribution": run.ClassDistribution,
		"output_file":        run.OutputFile,
		"download_url":       fmt.Sprintf("/api/download-predictions/%s", run.OutputFile),
		"predictions":        prediction.Batch.Sample(h.sampleLimit),
	})
}

// HandleDownload handles GET /api/download-predictions/{filename}
func (h *PredictionHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	f, err := h.service.OpenResult(filename)
	if err != nil {
		writeServiceError(w, "File not found", err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeServiceError(w, "Failed to read file", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeContent(w, r, filename, stat.ModTime(), f)
}
