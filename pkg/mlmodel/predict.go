package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/dataset"
	"github.com/mimir-aip/waterquality/pkg/inference"
	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

// Prediction is the outcome of a batch prediction request
type Prediction struct {
	Run   *models.PredictionRun
	Batch *inference.Batch
}

// ResolveModel finds the artifact to predict with. A pinned version wins;
// otherwise the most recently trained artifact of kind is used, falling back
// to the default model kind when kind is empty.
func (s *Service) ResolveModel(kind models.ModelKind, version string) (*inference.Model, *storage.ArtifactInfo, error) {
	if version == "" {
		if kind == "" {
			kind = s.opts.DefaultModel
		}
		v, err := s.latestVersion(kind)
		if err != nil {
			return nil, nil, err
		}
		version = v
	}

	info, err := s.files.FindArtifact(version)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return nil, nil, fmt.Errorf("%w: version %s", ErrModelNotFound, version)
		}
		return nil, nil, err
	}
	if kind != "" && info.Kind != kind {
		return nil, nil, fmt.Errorf("%w: version %s is a %s model, not %s", ErrModelNotFound, version, info.Kind.DisplayName(), kind.DisplayName())
	}

	model, err := s.loadModel(version)
	if err != nil {
		return nil, nil, err
	}
	return model, info, nil
}

// latestVersion prefers the version recorded by the newest training run and
// falls back to the newest stored artifact of the kind
func (s *Service) latestVersion(kind models.ModelKind) (string, error) {
	runs, err := s.store.ListTrainingRuns(s.opts.HistoryLimit)
	if err != nil {
		return "", err
	}
	for _, run := range runs {
		for _, m := range run.Models {
			if m.Kind != kind || m.Version == "" {
				continue
			}
			if _, err := s.files.FindArtifact(m.Version); err == nil {
				return m.Version, nil
			}
		}
	}

	artifacts, err := s.files.ListArtifacts()
	if err != nil {
		return "", err
	}
	for _, a := range artifacts {
		if a.Kind == kind {
			return a.Version, nil
		}
	}
	return "", fmt.Errorf("%w: no %s model available", ErrModelNotFound, kind.DisplayName())
}

// maxCachedModels bounds the decoded models kept in memory
const maxCachedModels = 8

func (s *Service) loadModel(version string) (*inference.Model, error) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if model, ok := s.cache[version]; ok {
		s.touchCached(version)
		return model, nil
	}
	payload, _, err := s.files.LoadArtifact(version)
	if err != nil {
		return nil, err
	}
	model, err := inference.DecodeModel(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", version, err)
	}
	s.cache[version] = model
	s.cacheOrder = append(s.cacheOrder, version)
	for len(s.cacheOrder) > s.cacheSize {
		delete(s.cache, s.cacheOrder[0])
		s.cacheOrder = append(s.cacheOrder[:0], s.cacheOrder[1:]...)
	}
	return model, nil
}

// touchCached marks version as most recently used. cacheMu must be held.
func (s *Service) touchCached(version string) {
	for i, v := range s.cacheOrder {
		if v == version {
			s.cacheOrder = append(append(s.cacheOrder[:i], s.cacheOrder[i+1:]...), version)
			return
		}
	}
}

// Predict scores a dataset, writes the results file and records the run
func (s *Service) Predict(ctx context.Context, req *models.PredictRequest) (*Prediction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	kind := req.ModelKind
	if kind != "" {
		parsed, err := models.ParseModelKind(string(kind))
		if err != nil {
			return nil, err
		}
		kind = parsed
	}

	model, info, err := s.ResolveModel(kind, req.ModelVersion)
	if err != nil {
		return nil, err
	}
	pipeline, err := inference.NewPipeline(model)
	if err != nil {
		return nil, err
	}

	t, err := dataset.ReadFile(req.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	batch, err := pipeline.PredictTable(ctx, t)
	if err != nil {
		return nil, err
	}

	run := &models.PredictionRun{
		ID:                uuid.New().String(),
		ModelKind:         info.Kind,
		ModelName:         info.Kind.DisplayName(),
		ModelVersion:      info.Version,
		DatasetFile:       req.DatasetFile,
		TotalRows:         len(batch.Results),
		TotalPredictions:  batch.Succeeded(),
		FailedRows:        batch.Failed,
		Statistics:        batch.Statistics,
		ClassDistribution: batch.Distribution,
		CreatedAt:         time.Now().UTC(),
	}

	outputName := fmt.Sprintf("predictions_%s_%s.csv", run.CreatedAt.Format("20060102_150405"), run.ID[:8])
	if _, err := s.files.SaveResult(outputName, batch.WriteCSV); err != nil {
		return nil, err
	}
	run.OutputFile = outputName

	if err := s.store.SavePredictionRun(run); err != nil {
		return nil, fmt.Errorf("failed to save prediction run: %w", err)
	}

	s.logger.Info("Prediction completed",
		zap.String("model", run.ModelName),
		zap.String("version", run.ModelVersion),
		zap.Int("rows", run.TotalRows),
		zap.Int("failed", run.FailedRows),
		zap.String("output", outputName))
	return &Prediction{Run: run, Batch: batch}, nil
}

// PredictSample scores a single sample with the resolved model. Nothing is
// recorded.
func (s *Service) PredictSample(kind models.ModelKind, version string, raw models.RawSample) (*models.PredictionResult, *storage.ArtifactInfo, error) {
	model, info, err := s.ResolveModel(kind, version)
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := inference.NewPipeline(model)
	if err != nil {
		return nil, nil, err
	}
	wqi, class, err := pipeline.PredictSample(raw)
	if err != nil {
		return nil, nil, err
	}
	return &models.PredictionResult{PredictedWQI: wqi, Class: class}, info, nil
}

// OpenResult opens a predictions file for download
func (s *Service) OpenResult(name string) (*os.File, error) {
	return s.files.OpenResult(name)
}
