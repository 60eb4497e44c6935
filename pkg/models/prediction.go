package models

import (
	"fmt"
	"time"
)

// PredictionRun summarises one batch inference request
type PredictionRun struct {
	ID                string           `json:"id"`
	ModelKind         ModelKind        `json:"model_kind"`
	ModelName         string           `json:"model_used"`
	ModelVersion      string           `json:"model_version"`
	DatasetFile       string           `json:"dataset_file"`
	OutputFile        string           `json:"output_file,omitempty"`
	TotalRows         int              `json:"total_rows"`
	TotalPredictions  int              `json:"total_predictions"`
	FailedRows        int              `json:"failed_rows"`
	Statistics        *PredictionStats `json:"statistics,omitempty"`
	ClassDistribution map[WQIClass]int `json:"class_distribution"`
	CreatedAt         time.Time        `json:"timestamp"`
}

// PredictRequest asks for batch inference over an uploaded dataset
type PredictRequest struct {
	DatasetPath  string    `json:"dataset_path"`
	DatasetFile  string    `json:"dataset_file"`
	ModelKind    ModelKind `json:"model_kind,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
}

// Validate checks if the PredictRequest is valid
func (r *PredictRequest) Validate() error {
	if r.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	if r.DatasetFile == "" {
		r.DatasetFile = r.DatasetPath
	}
	if r.ModelKind != "" {
		if _, err := ParseModelKind(string(r.ModelKind)); err != nil {
			return err
		}
	}
	return nil
}

// DashboardSummary aggregates the latest training and prediction activity
type DashboardSummary struct {
	TotalTrainings     int              `json:"total_trainings"`
	LatestTraining     *TrainingRun     `json:"latest_training,omitempty"`
	LatestPrediction   *PredictionRun   `json:"latest_prediction,omitempty"`
	AvailableModels    int              `json:"available_models"`
	StoredUploads      int              `json:"stored_uploads"`
	StoredResults      int              `json:"stored_results"`
	BestModel          ModelKind        `json:"best_model,omitempty"`
	BestModelRMSE      float64          `json:"best_model_rmse,omitempty"`
	LatestDistribution map[WQIClass]int `json:"latest_class_distribution,omitempty"`
}
