package models

import (
	"fmt"
	"strings"
	"time"
)

// ModelKind identifies one of the regressors in the training roster
type ModelKind string

const (
	ModelKindRidge            ModelKind = "ridge"
	ModelKindSVR              ModelKind = "svr"
	ModelKindRandomForest     ModelKind = "random_forest"
	ModelKindGradientBoosting ModelKind = "gradient_boosting"
	ModelKindXGBoost          ModelKind = "xgboost"
)

// ModelKinds is the fixed training roster. Its order is the final ranking tie-break.
var ModelKinds = []ModelKind{
	ModelKindRidge,
	ModelKindSVR,
	ModelKindRandomForest,
	ModelKindGradientBoosting,
	ModelKindXGBoost,
}

var modelKindNames = map[ModelKind]string{
	ModelKindRidge:            "Ridge",
	ModelKindSVR:              "SVR",
	ModelKindRandomForest:     "RandomForest",
	ModelKindGradientBoosting: "GradientBoosting",
	ModelKindXGBoost:          "XGBoost",
}

// DisplayName returns the human readable model name
func (k ModelKind) DisplayName() string {
	if name, ok := modelKindNames[k]; ok {
		return name
	}
	return string(k)
}

// ParseModelKind accepts either a kind identifier ("random_forest") or a
// display name ("RandomForest"), case-insensitively.
func ParseModelKind(s string) (ModelKind, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, kind := range ModelKinds {
		if needle == string(kind) || needle == strings.ToLower(kind.DisplayName()) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown model: %q", s)
}

// ModelStatus represents the outcome of fitting one candidate
type ModelStatus string

const (
	ModelStatusTrained ModelStatus = "trained"
	ModelStatusFailed  ModelStatus = "failed"
)

// ModelRecord describes one fitted (or failed) candidate of a training run
type ModelRecord struct {
	ID              string                 `json:"id"`
	RunID           string                 `json:"run_id"`
	Kind            ModelKind              `json:"model_kind"`
	Name            string                 `json:"model_name"`
	Status          ModelStatus            `json:"status"`
	Rank            int                    `json:"rank,omitempty"`
	IsBest          bool                   `json:"is_best"`
	Version         string                 `json:"version,omitempty"`
	Hyperparameters map[string]interface{} `json:"best_hyperparameters,omitempty"`
	Metrics         *PerformanceMetrics    `json:"metrics,omitempty"`
	Error           string                 `json:"error,omitempty"`
	TrainingSeconds float64                `json:"training_seconds"`
	CreatedAt       time.Time              `json:"created_at"`
}

// PerformanceMetrics holds cross-validation and held-out scores of a candidate
type PerformanceMetrics struct {
	CVRMSE            float64                   `json:"cv_rmse"`
	CVRMSEStd         float64                   `json:"cv_rmse_std"`
	R2                float64                   `json:"test_r2"`
	MAE               float64                   `json:"test_mae"`
	RMSE              float64                   `json:"test_rmse"`
	MAPE              float64                   `json:"test_mape"`
	ClassAccuracy     float64                   `json:"class_accuracy"`
	ConfusionMatrix   map[string]map[string]int `json:"confusion_matrix,omitempty"`
	FeatureImportance map[string]float64        `json:"feature_importance,omitempty"`
}

// TrainingConfig holds the knobs applied to a training run
type TrainingConfig struct {
	CVFolds          int     `json:"cv_folds"`
	TestSize         float64 `json:"test_size"`
	RandomSeed       int64   `json:"random_seed"`
	TuningIterations int     `json:"tuning_iterations"`
	Workers          int     `json:"workers"`
}

// Validate checks that the configuration can drive a training run
func (c *TrainingConfig) Validate() error {
	if c.CVFolds < 2 {
		return fmt.Errorf("cv_folds must be at least 2, got %d", c.CVFolds)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("test_size must be in (0, 1), got %g", c.TestSize)
	}
	if c.TuningIterations < 1 {
		return fmt.Errorf("tuning_iterations must be positive, got %d", c.TuningIterations)
	}
	return nil
}

// RunStatus represents the lifecycle of a training run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// TrainingRun summarises one execution of the model trainer
type TrainingRun struct {
	ID              string         `json:"id"`
	Status          RunStatus      `json:"status"`
	DatasetFile     string         `json:"dataset_file"`
	DatasetRows     int            `json:"dataset_rows"`
	DatasetColumns  int            `json:"dataset_columns"`
	FeaturesUsed    []string       `json:"features_used"`
	TrainSize       int            `json:"train_size"`
	TestSize        int            `json:"test_size"`
	ImputedCells    int            `json:"imputed_cells"`
	SkippedRows     []RowError     `json:"skipped_rows,omitempty"`
	Models          []*ModelRecord `json:"models"`
	BestModel       ModelKind      `json:"best_model,omitempty"`
	BestVersion     string         `json:"best_version,omitempty"`
	Config          TrainingConfig `json:"config"`
	Error           string         `json:"error,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	CreatedAt       time.Time      `json:"timestamp"`
}

// ModelsTrained counts the candidates that fitted successfully
func (r *TrainingRun) ModelsTrained() int {
	n := 0
	for _, m := range r.Models {
		if m.Status == ModelStatusTrained {
			n++
		}
	}
	return n
}

// Best returns the selected model record, or nil when no candidate succeeded
func (r *TrainingRun) Best() *ModelRecord {
	for _, m := range r.Models {
		if m.IsBest {
			return m
		}
	}
	return nil
}

// TrainingState reports the progress of the training worker
type TrainingState struct {
	IsTraining    bool      `json:"is_training"`
	Progress      int       `json:"progress"`
	CurrentModel  string    `json:"current_model,omitempty"`
	ModelsTrained []string  `json:"models_trained"`
	QueuedJobs    int64     `json:"queued_jobs"`
	StartedAt     time.Time `json:"started_at,omitempty"`
}

// TrainRequest asks for a training run over an uploaded dataset
type TrainRequest struct {
	DatasetPath string `json:"dataset_path"`
	DatasetFile string `json:"dataset_file"`
}

// Validate checks if the TrainRequest is valid
func (r *TrainRequest) Validate() error {
	if r.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	if r.DatasetFile == "" {
		r.DatasetFile = r.DatasetPath
	}
	return nil
}
