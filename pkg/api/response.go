package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/mimir-aip/waterquality/pkg/dataset"
	"github.com/mimir-aip/waterquality/pkg/inference"
	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/queue"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// writeServiceError maps a service error onto a status code and JSON body
func writeServiceError(w http.ResponseWriter, prefix string, err error) {
	status, details := classifyError(err)
	writeError(w, status, fmt.Sprintf("%s: %v", prefix, err), details)
}

func classifyError(err error) (int, map[string]interface{}) {
	var (
		missing  *dataset.MissingColumnError
		invalid  *dataset.InvalidValueError
		skew     *inference.FeatureSkewError
		failure  *training.TrainingFailure
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &missing):
		details := map[string]interface{}{"missing_columns": missing.Missing}
		if missing.Column == models.ColumnWQI {
			details["suggestion"] = "Make sure your dataset includes a 'WQI' column for training"
		}
		return http.StatusBadRequest, details
	case errors.As(err, &invalid):
		return http.StatusBadRequest, map[string]interface{}{
			"column": invalid.Column,
			"row":    invalid.Row,
			"line":   invalid.Line,
			"value":  invalid.Value,
		}
	case errors.As(err, &skew):
		return http.StatusConflict, map[string]interface{}{
			"expected_features": skew.Expected,
			"model_features":    skew.Actual,
		}
	case errors.As(err, &failure):
		reasons := make(map[string]interface{}, len(failure.Errors))
		for kind, e := range failure.Errors {
			if e != nil {
				reasons[string(kind)] = e.Error()
			}
		}
		return http.StatusUnprocessableEntity, map[string]interface{}{"models": reasons}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, map[string]interface{}{"limit_bytes": tooLarge.Limit}
	case errors.Is(err, mlmodel.ErrTrainingInProgress),
		errors.Is(err, queue.ErrNotCancellable):
		return http.StatusConflict, nil
	case errors.Is(err, mlmodel.ErrModelNotFound),
		errors.Is(err, metadatastore.ErrNotFound),
		errors.Is(err, storage.ErrArtifactNotFound),
		errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound, nil
	case errors.Is(err, mlmodel.ErrUnsupportedFile),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, dataset.ErrEmptyDataset),
		errors.Is(err, training.ErrInsufficientData):
		return http.StatusBadRequest, nil
	}
	return http.StatusInternalServerError, nil
}

// receiveUpload stores the multipart "file" field and returns its path and
// original file name
func receiveUpload(w http.ResponseWriter, r *http.Request, service *mlmodel.Service, maxBytes int64) (string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, "Upload too large", err)
			return "", "", false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid upload: %v", err), nil)
		return "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided", nil)
		return "", "", false
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected", nil)
		return "", "", false
	}

	path, err := service.Upload(header.Filename, file)
	if err != nil {
		writeServiceError(w, "Failed to store upload", err)
		return "", "", false
	}
	return path, header.Filename, true
}
