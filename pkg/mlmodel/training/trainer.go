// Package training fits the regressor roster with randomized hyperparameter
// search and k-fold cross-validation, then ranks the fitted candidates.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sjwhitworth/golearn/evaluation"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// ErrInsufficientData is returned when there are too few rows to split
var ErrInsufficientData = errors.New("insufficient training data")

// TrainingFailure is returned when every candidate failed
type TrainingFailure struct {
	Errors map[models.ModelKind]error
}

func (e *TrainingFailure) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, kind := range models.ModelKinds {
		if err, ok := e.Errors[kind]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", kind, err))
		}
	}
	return fmt.Sprintf("all %d candidate models failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Config controls a training run
type Config struct {
	CVFolds    int
	TestSize   float64
	Seed       int64
	Iterations int
	Workers    int
	// Kinds defaults to the full roster
	Kinds  []models.ModelKind
	Spaces SearchSpaces
}

// Progress is reported after each candidate finishes
type Progress struct {
	Kind      models.ModelKind
	Done      int
	Total     int
	Err       error
	Succeeded bool
}

// Candidate is one fitted (or failed) roster entry
type Candidate struct {
	Kind           models.ModelKind
	Model          Regressor
	Params         Params
	CVRMSE         float64
	CVRMSEStd      float64
	Test           RegressionMetrics
	ClassAccuracy  float64
	Confusion      evaluation.ConfusionMatrix
	Importance     map[string]float64
	Combinations   int
	Duration       time.Duration
	Err            error
	rosterPosition int
}

// Result is the outcome of a training run. Candidates lists the successful
// candidates in rank order followed by the failed ones in roster order.
type Result struct {
	Candidates []*Candidate
	Best       *Candidate
	TrainSize  int
	TestSize   int
}

// Trainer fits and ranks the roster
type Trainer struct {
	cfg        Config
	logger     *zap.Logger
	onProgress func(Progress)
}

// NewTrainer creates a trainer. Zero config fields take their defaults.
func NewTrainer(cfg Config) *Trainer {
	if cfg.CVFolds == 0 {
		cfg.CVFolds = 5
	}
	if cfg.TestSize == 0 {
		cfg.TestSize = 0.2
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 30
	}
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = models.ModelKinds
	}
	if cfg.Spaces == nil {
		cfg.Spaces = DefaultSearchSpaces()
	}
	return &Trainer{
		cfg:    cfg,
		logger: zap.L().Named("trainer"),
	}
}

// OnProgress registers a callback invoked after each candidate
func (t *Trainer) OnProgress(fn func(Progress)) {
	t.onProgress = fn
}

// Train splits the data, searches and fits every candidate, and ranks them
// by cross-validated RMSE (ties: held-out RMSE, then roster order). A
// candidate that fails is kept with its error; only when all fail is a
// *TrainingFailure returned.
func (t *Trainer) Train(ctx context.Context, X [][]float64, y []float64, featureNames []string) (*Result, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and targets (%d) differ", len(X), len(y))
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("target of row %d is not finite", i)
		}
	}

	trainIdx, testIdx, err := TrainTestSplit(len(X), t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, err
	}
	trainX, trainY := subset(X, y, trainIdx)
	testX, testY := subset(X, y, testIdx)

	folds, err := KFold(len(trainX), t.cfg.CVFolds, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Starting training run",
		zap.Int("train_size", len(trainX)),
		zap.Int("test_size", len(testX)),
		zap.Int("folds", t.cfg.CVFolds),
		zap.Int("iterations", t.cfg.Iterations))

	candidates := make([]*Candidate, 0, len(t.cfg.Kinds))
	for pos, kind := range t.cfg.Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := t.fitCandidate(ctx, kind, trainX, trainY, testX, testY, folds, featureNames)
		c.rosterPosition = pos
		if c.Err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		candidates = append(candidates, c)

		if c.Err != nil {
			t.logger.Warn("Candidate failed", zap.String("model", string(kind)), zap.Error(c.Err))
		} else {
			t.logger.Info("Candidate trained",
				zap.String("model", string(kind)),
				zap.Float64("cv_rmse", c.CVRMSE),
				zap.Float64("test_rmse", c.Test.RMSE),
				zap.Float64("test_r2", c.Test.R2),
				zap.Duration("duration", c.Duration))
		}
		if t.onProgress != nil {
			t.onProgress(Progress{Kind: kind, Done: pos + 1, Total: len(t.cfg.Kinds), Err: c.Err, Succeeded: c.Err == nil})
		}
	}

	ranked := Rank(candidates)
	if len(ranked) == 0 || ranked[0].Err != nil {
		failure := &TrainingFailure{Errors: make(map[models.ModelKind]error, len(candidates))}
		for _, c := range candidates {
			failure.Errors[c.Kind] = c.Err
		}
		return nil, failure
	}

	return &Result{
		Candidates: ranked,
		Best:       ranked[0],
		TrainSize:  len(trainX),
		TestSize:   len(testX),
	}, nil
}

func (t *Trainer) fitCandidate(ctx context.Context, kind models.ModelKind, trainX [][]float64, trainY []float64, testX [][]float64, testY []float64, folds []Fold, featureNames []string) *Candidate {
	start := time.Now()
	c := &Candidate{Kind: kind}
	defer func() { c.Duration = time.Since(start) }()

	space, ok := t.cfg.Spaces[kind]
	if !ok {
		space = &SearchSpace{}
	}

	search, err := RandomizedSearch(ctx, kind, space, trainX, trainY, folds, t.cfg.Iterations, t.cfg.Workers, t.cfg.Seed)
	if err != nil {
		c.Err = err
		return c
	}
	c.Params = search.Params
	c.CVRMSE = search.CVRMSE
	c.CVRMSEStd = search.CVRMSEStd
	c.Combinations = search.Evaluated

	model, err := New(kind, search.Params, t.cfg.Seed)
	if err != nil {
		c.Err = err
		return c
	}
	pred, err := fitPredict(model, trainX, trainY, testX)
	if err != nil {
		c.Err = err
		return c
	}

	c.Model = model
	c.Test = CalculateRegressionMetrics(pred, testY)
	c.Confusion = ClassConfusion(pred, testY)
	c.ClassAccuracy = ClassAccuracy(c.Confusion)
	if imp := model.FeatureImportances(); imp != nil && len(imp) == len(featureNames) {
		c.Importance = make(map[string]float64, len(imp))
		for j, name := range featureNames {
			c.Importance[name] = imp[j]
		}
	}
	return c
}

// Rank orders successful candidates by cv_rmse, then test_rmse, then roster
// position, and appends failed candidates in roster order.
func Rank(candidates []*Candidate) []*Candidate {
	ranked := make([]*Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return a.rosterPosition < b.rosterPosition
		}
		if a.CVRMSE != b.CVRMSE {
			return a.CVRMSE < b.CVRMSE
		}
		if a.Test.RMSE != b.Test.RMSE {
			return a.Test.RMSE < b.Test.RMSE
		}
		return a.rosterPosition < b.rosterPosition
	})
	return ranked
}
