package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// SearchResult is the winning combination of a randomized search
type SearchResult struct {
	Params    Params
	CVRMSE    float64
	CVRMSEStd float64
	Evaluated int
	Failed    int
}

// comboScore holds the fold scores of one combination
type comboScore struct {
	rmse []float64
	err  error
}

// RandomizedSearch evaluates up to iterations sampled combinations of space
// with k-fold cross-validation and returns the one with the lowest mean RMSE.
// Ties go to the combination sampled first. Combinations are evaluated
// concurrently on at most workers goroutines; the result does not depend on
// the worker count.
func RandomizedSearch(ctx context.Context, kind models.ModelKind, space *SearchSpace, X [][]float64, y []float64, folds []Fold, iterations, workers int, seed int64) (*SearchResult, error) {
	rng := rand.New(rand.NewSource(seed))
	combos := space.Sample(iterations, rng)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	scores := make([]comboScore, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for c := range combos {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[c] = evaluateCombo(gctx, kind, combos[c], X, y, folds, seed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := -1
	bestMean, bestStd := math.Inf(1), 0.0
	var firstErr error
	failed := 0
	for c, s := range scores {
		if s.err != nil {
			failed++
			if firstErr == nil {
				firstErr = s.err
			}
			continue
		}
		mean, std := stat.PopMeanStdDev(s.rmse, nil)
		if mean < bestMean {
			best, bestMean, bestStd = c, mean, std
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("all %d hyperparameter combinations failed: %w", len(combos), firstErr)
	}

	return &SearchResult{
		Params:    combos[best],
		CVRMSE:    bestMean,
		CVRMSEStd: bestStd,
		Evaluated: len(combos),
		Failed:    failed,
	}, nil
}

func evaluateCombo(ctx context.Context, kind models.ModelKind, params Params, X [][]float64, y []float64, folds []Fold, seed int64) comboScore {
	rmse := make([]float64, 0, len(folds))
	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return comboScore{err: err}
		}
		trainX, trainY := subset(X, y, fold.Train)
		testX, testY := subset(X, y, fold.Test)

		model, err := New(kind, params, seed)
		if err != nil {
			return comboScore{err: err}
		}
		pred, err := fitPredict(model, trainX, trainY, testX)
		if err != nil {
			return comboScore{err: err}
		}
		rmse = append(rmse, RMSE(pred, testY))
	}
	return comboScore{rmse: rmse}
}

// fitPredict fits model and predicts testX, turning panics and non-finite
// output into errors.
func fitPredict(model Regressor, trainX [][]float64, trainY []float64, testX [][]float64) (pred []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", model.Kind(), r)
		}
	}()

	if err := model.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("failed to fit %s: %w", model.Kind(), err)
	}
	pred, err = model.Predict(testX)
	if err != nil {
		return nil, fmt.Errorf("failed to predict with %s: %w", model.Kind(), err)
	}
	for _, v := range pred {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s produced a non-finite prediction", model.Kind())
		}
	}
	return pred, nil
}
