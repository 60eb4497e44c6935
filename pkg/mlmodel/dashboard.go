package mlmodel

import (
	"errors"
	"fmt"

	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

// ListModels returns every stored artifact, newest first, with the metrics of
// the record that produced it
func (s *Service) ListModels() ([]*ModelSummary, error) {
	artifacts, err := s.files.ListArtifacts()
	if err != nil {
		return nil, err
	}
	out := make([]*ModelSummary, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, s.summarize(a))
	}
	return out, nil
}

// GetModel returns one artifact by version
func (s *Service) GetModel(version string) (*ModelSummary, error) {
	info, err := s.files.FindArtifact(version)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return nil, fmt.Errorf("%w: version %s", ErrModelNotFound, version)
		}
		return nil, err
	}
	return s.summarize(info), nil
}

func (s *Service) summarize(a *storage.ArtifactInfo) *ModelSummary {
	summary := &ModelSummary{ArtifactInfo: *a}
	record, err := s.store.GetModelRecordByVersion(a.Version)
	if err != nil {
		return summary
	}
	summary.RunID = record.RunID
	summary.IsBest = record.IsBest
	summary.Hyperparameters = record.Hyperparameters
	summary.Metrics = record.Metrics
	return summary
}

// LatestTraining returns the newest training run
func (s *Service) LatestTraining() (*models.TrainingRun, error) {
	return s.store.LatestTrainingRun()
}

// LatestPrediction returns the newest prediction run
func (s *Service) LatestPrediction() (*models.PredictionRun, error) {
	return s.store.LatestPredictionRun()
}

// TrainingHistory returns the most recent training runs
func (s *Service) TrainingHistory() ([]*models.TrainingRun, error) {
	return s.store.ListTrainingRuns(s.opts.HistoryLimit)
}

// Summary aggregates the dashboard overview
func (s *Service) Summary() (*models.DashboardSummary, error) {
	total, err := s.store.CountTrainingRuns()
	if err != nil {
		return nil, err
	}
	summary := &models.DashboardSummary{TotalTrainings: total}

	latest, err := s.store.LatestTrainingRun()
	switch {
	case err == nil:
		summary.LatestTraining = latest
		if best := latest.Best(); best != nil {
			summary.BestModel = best.Kind
			if best.Metrics != nil {
				summary.BestModelRMSE = best.Metrics.CVRMSE
			}
		}
	case !errors.Is(err, metadatastore.ErrNotFound):
		return nil, err
	}

	prediction, err := s.store.LatestPredictionRun()
	switch {
	case err == nil:
		summary.LatestPrediction = prediction
		summary.LatestDistribution = prediction.ClassDistribution
	case !errors.Is(err, metadatastore.ErrNotFound):
		return nil, err
	}

	artifacts, err := s.files.ListArtifacts()
	if err != nil {
		return nil, err
	}
	summary.AvailableModels = len(artifacts)

	uploads, err := s.files.ListUploads()
	if err != nil {
		return nil, err
	}
	summary.StoredUploads = len(uploads)

	results, err := s.files.ListResults()
	if err != nil {
		return nil, err
	}
	summary.StoredResults = len(results)
	return summary, nil
}
