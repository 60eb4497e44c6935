// Package mlmodel runs training and batch prediction on uploaded datasets
// and keeps the resulting artifacts and history.
package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/dataset"
	"github.com/mimir-aip/waterquality/pkg/features"
	"github.com/mimir-aip/waterquality/pkg/inference"
	"github.com/mimir-aip/waterquality/pkg/metadatastore"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/models"
	"github.com/mimir-aip/waterquality/pkg/queue"
	"github.com/mimir-aip/waterquality/pkg/storage"
)

var (
	// ErrTrainingInProgress is returned when a training run is already active
	ErrTrainingInProgress = errors.New("training already in progress")

	// ErrModelNotFound is returned when no artifact can serve a prediction
	ErrModelNotFound = errors.New("model not found, please train models first")

	// ErrUnsupportedFile is returned for uploads that are not CSV files
	ErrUnsupportedFile = errors.New("invalid file type, only CSV files are allowed")
)

// Options configures the service
type Options struct {
	Training      models.TrainingConfig
	Spaces        training.SearchSpaces
	Kinds         []models.ModelKind
	DefaultModel  models.ModelKind
	ImputeMissing bool
	HistoryLimit  int
}

// ModelSummary is a stored artifact joined with the record that produced it
type ModelSummary struct {
	storage.ArtifactInfo
	RunID           string                     `json:"run_id,omitempty"`
	IsBest          bool                       `json:"is_best"`
	Hyperparameters map[string]interface{}     `json:"best_hyperparameters,omitempty"`
	Metrics         *models.PerformanceMetrics `json:"metrics,omitempty"`
}

// Service manages training runs, model artifacts and predictions
type Service struct {
	store  metadatastore.MetadataStore
	files  *storage.FileStore
	queue  *queue.Queue
	opts   Options
	logger *zap.Logger

	trainMu sync.Mutex

	stateMu sync.RWMutex
	state   models.TrainingState

	cacheMu    sync.Mutex
	cache      map[string]*inference.Model
	cacheOrder []string // least recently used first
	cacheSize  int
}

// NewService creates a new ML model service
func NewService(
	store metadatastore.MetadataStore,
	files *storage.FileStore,
	q *queue.Queue,
	opts Options,
) *Service {
	if opts.DefaultModel == "" {
		opts.DefaultModel = models.ModelKindXGBoost
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Service{
		store:     store,
		files:     files,
		queue:     q,
		opts:      opts,
		logger:    zap.L().Named("mlmodel"),
		state:     models.TrainingState{ModelsTrained: []string{}},
		cache:     make(map[string]*inference.Model),
		cacheSize: maxCachedModels,
	}
}

// Upload stores an uploaded dataset and returns its path
func (s *Service) Upload(name string, r io.Reader) (string, error) {
	if !dataset.AllowedFile(name) {
		return "", ErrUnsupportedFile
	}
	return s.files.SaveUpload(name, r)
}

// Analyze inspects a dataset without training on it
func (s *Service) Analyze(path string) (*models.DatasetAnalysis, error) {
	t, err := dataset.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return dataset.Analyze(t), nil
}

// Train runs the full roster on a labeled dataset. Only one run may be
// active; a second caller gets ErrTrainingInProgress.
func (s *Service) Train(ctx context.Context, req *models.TrainRequest) (*models.TrainingRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	s.beginTraining()
	defer s.endTraining()

	start := time.Now()
	run := &models.TrainingRun{
		ID:           uuid.New().String(),
		DatasetFile:  req.DatasetFile,
		FeaturesUsed: append([]string(nil), features.Names...),
		Config:       s.opts.Training,
		Models:       []*models.ModelRecord{},
		CreatedAt:    start.UTC(),
	}
	logger := s.logger.With(zap.String("run_id", run.ID), zap.String("dataset", req.DatasetFile))

	X, y, err := s.loadTrainingData(req.DatasetPath, run)
	if err != nil {
		return nil, err
	}
	logger.Info("Training data prepared",
		zap.Int("rows", len(X)),
		zap.Int("skipped", len(run.SkippedRows)),
		zap.Int("imputed", run.ImputedCells))

	trainer := training.NewTrainer(training.Config{
		CVFolds:    s.opts.Training.CVFolds,
		TestSize:   s.opts.Training.TestSize,
		Seed:       s.opts.Training.RandomSeed,
		Iterations: s.opts.Training.TuningIterations,
		Workers:    s.opts.Training.Workers,
		Kinds:      s.opts.Kinds,
		Spaces:     s.opts.Spaces,
	})
	trainer.OnProgress(s.recordProgress)

	result, err := trainer.Train(ctx, X, y, features.Names)
	run.DurationSeconds = time.Since(start).Seconds()
	if err != nil {
		var failure *training.TrainingFailure
		if errors.As(err, &failure) {
			run.Models = failedRecords(run, failure)
		}
		if ctx.Err() == nil {
			run.Status = models.RunStatusFailed
			run.Error = err.Error()
			if saveErr := s.store.SaveTrainingRun(run); saveErr != nil {
				logger.Error("Failed to record failed training run", zap.Error(saveErr))
			}
		}
		logger.Warn("Training run failed", zap.Error(err))
		return nil, err
	}

	run.TrainSize = result.TrainSize
	run.TestSize = result.TestSize
	for rank, c := range result.Candidates {
		record, err := s.recordCandidate(run, c, rank+1)
		if err != nil {
			return nil, err
		}
		run.Models = append(run.Models, record)
	}

	best := run.Best()
	run.Status = models.RunStatusCompleted
	run.BestModel = best.Kind
	run.BestVersion = best.Version
	run.DurationSeconds = time.Since(start).Seconds()

	if err := s.store.SaveTrainingRun(run); err != nil {
		return nil, fmt.Errorf("failed to save training run: %w", err)
	}
	if _, err := s.store.PruneTrainingRuns(s.opts.HistoryLimit); err != nil {
		logger.Warn("Failed to prune training history", zap.Error(err))
	}

	logger.Info("Training run completed",
		zap.String("best_model", string(run.BestModel)),
		zap.String("best_version", run.BestVersion),
		zap.Float64("cv_rmse", best.Metrics.CVRMSE),
		zap.Int("models_trained", run.ModelsTrained()),
		zap.Float64("duration_seconds", run.DurationSeconds))
	return run, nil
}

// loadTrainingData reads, imputes and normalizes a labeled dataset. Rows with
// invalid values are skipped and recorded on the run.
func (s *Service) loadTrainingData(path string, run *models.TrainingRun) ([][]float64, []float64, error) {
	t, err := dataset.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	run.DatasetRows = len(t.Rows)
	run.DatasetColumns = len(t.Header)

	schema, err := dataset.Resolve(t.Header)
	if err != nil {
		return nil, nil, err
	}
	if !schema.HasTarget() {
		return nil, nil, &dataset.MissingColumnError{Column: models.ColumnWQI, Missing: []string{models.ColumnWQI}}
	}
	if s.opts.ImputeMissing {
		run.ImputedCells = schema.ImputeMedian(t)
	}

	samples := make([]models.CanonicalSample, 0, len(t.Rows))
	y := make([]float64, 0, len(t.Rows))
	for i, row := range t.Rows {
		sample, err := schema.Canonical(row, i)
		if err == nil {
			var target float64
			if target, err = schema.Target(row, i); err == nil {
				samples = append(samples, sample)
				y = append(y, target)
				continue
			}
		}
		run.SkippedRows = append(run.SkippedRows, rowError(i, dataset.AtLine(err, t, i)))
	}
	return features.Matrix(samples), y, nil
}

func rowError(row int, err error) models.RowError {
	re := models.RowError{Row: row, Message: err.Error()}
	var invalid *dataset.InvalidValueError
	if errors.As(err, &invalid) {
		re.Line = invalid.Line
		re.Column = invalid.Column
		re.Value = invalid.Value
	}
	return re
}

// recordCandidate stores the artifact of a successful candidate and builds
// its model record
func (s *Service) recordCandidate(run *models.TrainingRun, c *training.Candidate, rank int) (*models.ModelRecord, error) {
	record := &models.ModelRecord{
		ID:              uuid.New().String(),
		RunID:           run.ID,
		Kind:            c.Kind,
		Name:            c.Kind.DisplayName(),
		TrainingSeconds: c.Duration.Seconds(),
		CreatedAt:       run.CreatedAt,
	}
	if c.Err != nil {
		record.Status = models.ModelStatusFailed
		record.Error = c.Err.Error()
		return record, nil
	}

	params := map[string]interface{}(c.Params)
	payload, err := inference.EncodeModel(c.Model, params, features.Names)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", c.Kind, err)
	}
	info, err := s.files.SaveArtifact(c.Kind, payload)
	if err != nil {
		return nil, err
	}

	record.Status = models.ModelStatusTrained
	record.Rank = rank
	record.IsBest = rank == 1
	record.Version = info.Version
	record.Hyperparameters = params
	record.Metrics = &models.PerformanceMetrics{
		CVRMSE:            c.CVRMSE,
		CVRMSEStd:         c.CVRMSEStd,
		R2:                c.Test.R2,
		MAE:               c.Test.MAE,
		RMSE:              c.Test.RMSE,
		MAPE:              c.Test.MAPE,
		ClassAccuracy:     c.ClassAccuracy,
		ConfusionMatrix:   map[string]map[string]int(c.Confusion),
		FeatureImportance: c.Importance,
	}
	return record, nil
}

func failedRecords(run *models.TrainingRun, failure *training.TrainingFailure) []*models.ModelRecord {
	records := make([]*models.ModelRecord, 0, len(failure.Errors))
	for _, kind := range models.ModelKinds {
		err, ok := failure.Errors[kind]
		if !ok {
			continue
		}
		record := &models.ModelRecord{
			ID:        uuid.New().String(),
			RunID:     run.ID,
			Kind:      kind,
			Name:      kind.DisplayName(),
			Status:    models.ModelStatusFailed,
			CreatedAt: run.CreatedAt,
		}
		if err != nil {
			record.Error = err.Error()
		}
		records = append(records, record)
	}
	return records
}

func (s *Service) beginTraining() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = models.TrainingState{
		IsTraining:    true,
		ModelsTrained: []string{},
		StartedAt:     time.Now().UTC(),
	}
}

func (s *Service) endTraining() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.IsTraining = false
	s.state.CurrentModel = ""
}

func (s *Service) recordProgress(p training.Progress) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state.Progress = p.Done * 100 / p.Total
	s.state.CurrentModel = p.Kind.DisplayName()
	if p.Succeeded {
		s.state.ModelsTrained = append(s.state.ModelsTrained, p.Kind.DisplayName())
	}
}

// State returns a snapshot of the training progress
func (s *Service) State() models.TrainingState {
	s.stateMu.RLock()
	state := s.state
	state.ModelsTrained = append([]string{}, s.state.ModelsTrained...)
	s.stateMu.RUnlock()

	if s.queue != nil {
		if n, err := s.queue.QueueLength(); err == nil {
			state.QueuedJobs = n
		}
	}
	return state
}
