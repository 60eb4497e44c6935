package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/mlmodel"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/queue"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

const testSpaces = `
ridge:
  alpha: {values: [1.0]}
svr:
  C: {values: [10]}
random_forest:
  n_estimators: {values: [10]}
  max_depth: {values: [4]}
gradient_boosting:
  n_estimators: {values: [20]}
xgboost:
  n_estimators: {values: [20]}
  max_depth: {values: [3]}
`

func newTestServer(t *testing.T) (*Server, *mlmodel.Service) {
	t.Helper()
	dir := t.TempDir()

	store, err := metadatastore.NewSQLiteStore(filepath.Join(dir, "wqi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	files, err := storage.NewFileStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "models"), filepath.Join(dir, "results"))
	require.NoError(t, err)
	t.Cleanup(func() { files.Close() })

	q, err := queue.NewQueue()
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	spaces, err := training.ParseSearchSpaces([]byte(testSpaces))
	require.NoError(t, err)

	service := mlmodel.NewService(store, files, q, mlmodel.Options{
		Training: models.TrainingConfig{
			CVFolds:          3,
			TestSize:         0.2,
			RandomSeed:       42,
			TuningIterations: 1,
			Workers:          2,
		},
		Spaces:        spaces,
		ImputeMissing: true,
		HistoryLimit:  50,
	})

	server := NewServer(service, Options{
		Port:           "0",
		CORSOrigins:    []string{"http://localhost:3000"},
		MaxUploadBytes: 1 << 20,
		SampleLimit:    10,
	})
	return server, service
}

func csvData(n int, withTarget bool) string {
	rng := rand.New(rand.NewSource(9))
	header := "Temp,pH,Conductivity,Nitrate,Fecal_Coliform,Total_Coliform,TDS,Fluoride"
	if withTarget {
		header += ",WQI"
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	for i := 0; i < n; i++ {
		tds := 50 + rng.Float64()*700
		nitrate := rng.Float64() * 10
		fmt.Fprintf(&b, "%.2f,%.2f,%.1f,%.2f,%.1f,%.1f,%.1f,%.2f",
			15+rng.Float64()*15, 6+rng.Float64()*3, 100+rng.Float64()*900, nitrate,
			rng.Float64()*500, rng.Float64()*1500, tds, rng.Float64()*1.5)
		if withTarget {
			fmt.Fprintf(&b, ",%.2f", 10+0.04*tds+3*nitrate+rng.NormFloat64())
		}
		b.WriteString("\n")
	}
	return b.String()
}

func uploadRequest(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["models_available"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/train", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(server, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTrainUploadValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, uploadRequest(t, "/api/train", "", "", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decodeBody(t, rec)["error"])

	rec = serve(server, uploadRequest(t, "/api/train", "data.txt", "a,b\n1,2\n", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(server, uploadRequest(t, "/api/train", "unlabeled.csv", csvData(10, false), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	details := body["details"].(map[string]interface{})
	assert.Contains(t, details["suggestion"], "WQI")
}

func TestUploadTooLarge(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, uploadRequest(t, "/api/train", "big.csv", strings.Repeat("x", 2<<20), nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestAnalyzeDataset(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, uploadRequest(t, "/api/analyze-dataset", "water.csv", csvData(20, true), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	analysis := body["analysis"].(map[string]interface{})
	assert.Equal(t, float64(20), analysis["rows"])
	validation := analysis["validation"].(map[string]interface{})
	assert.Equal(t, true, validation["ready_for_training"])
}

func TestPredictWithoutModel(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, uploadRequest(t, "/api/predict", "water.csv", csvData(5, false), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(server, uploadRequest(t, "/api/predict", "water.csv", csvData(5, false), map[string]string{"model_name": "LinearRegression"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrainPredictDownload(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, uploadRequest(t, "/api/train", "water.csv", csvData(60, true), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(5), body["models_trained"])
	bestVersion := body["best_version"].(string)
	require.NotEmpty(t, bestVersion)

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5), decodeBody(t, rec)["count"])

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/models/"+bestVersion, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["is_best"])

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/models/0000000000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(server, uploadRequest(t, "/api/predict", "new.csv", csvData(25, false), map[string]string{"model_version": bestVersion}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, bestVersion, body["model_version"])
	assert.Equal(t, float64(25), body["total_predictions"])
	assert.Len(t, body["predictions"], 10)

	rec = serve(server, httptest.NewRequest(http.MethodGet, body["download_url"].(string), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 26)
	assert.True(t, strings.HasSuffix(lines[0], "predicted_WQI,predicted_WQI_Class"))

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody(t, rec)
	assert.Equal(t, float64(1), summary["total_trainings"])
	assert.Equal(t, float64(5), summary["available_models"])

	for _, path := range []string{"/api/dashboard/latest-training", "/api/dashboard/latest-prediction", "/api/dashboard/training-history", "/api/training-status"} {
		rec = serve(server, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestDashboardEmpty(t *testing.T) {
	server, _ := newTestServer(t)
	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/dashboard/latest-training", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/dashboard/latest-prediction", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadRejectsBadNames(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/download-predictions/..secret", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/download-predictions/missing.csv", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsyncTraining(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, uploadRequest(t, "/api/train?async=true", "water.csv", csvData(40, true), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	job := body["job"].(map[string]interface{})
	jobID := job["job_id"].(string)
	assert.Equal(t, "queued", job["status"])

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/training-jobs/"+jobID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/training-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["queued_jobs"])

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/training-jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTrainingJob(t *testing.T) {
	server, _ := newTestServer(t)

	rec := serve(server, uploadRequest(t, "/api/train?async=true", "water.csv", csvData(40, true), nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decodeBody(t, rec)["job"].(map[string]interface{})["job_id"].(string)

	rec = serve(server, httptest.NewRequest(http.MethodDelete, "/api/training-jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeBody(t, rec)["job"].(map[string]interface{})["status"])

	rec = serve(server, httptest.NewRequest(http.MethodDelete, "/api/training-jobs/"+jobID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(server, httptest.NewRequest(http.MethodDelete, "/api/training-jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/api/training-status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["queued_jobs"])
}

func TestClassifyError(t *testing.T) {
	status, _ := classifyError(mlmodel.ErrTrainingInProgress)
	assert.Equal(t, http.StatusConflict, status)

	status, details := classifyError(&training.TrainingFailure{Errors: map[models.ModelKind]error{
		models.ModelKindSVR: fmt.Errorf("boom"),
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, map[string]interface{}{"svr": "boom"}, details["models"])

	status, _ = classifyError(fmt.Errorf("wrapped: %w", storage.ErrArtifactNotFound))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = classifyError(fmt.Errorf("wrapped: %w", queue.ErrNotCancellable))
	assert.Equal(t, http.StatusConflict, status)

	status, _ = classifyError(fmt.Errorf("wrapped: %w", queue.ErrJobNotFound))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = classifyError(fmt.Errorf("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
}
