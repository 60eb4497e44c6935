package training

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// boostedTrees is the additive model shared by both boosting regressors:
// prediction = Base + LearningRate * Σ tree(x)
type boostedTrees struct {
	Base         float64   `json:"base"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []*Tree   `json:"trees"`
	Importance   []float64 `json:"importance"`
	Features     int       `json:"features"`
}

// boostConfig controls one boosting fit
type boostConfig struct {
	rounds       int
	learningRate float64
	subsample    float64
	colsample    float64
	tree         treeParams
	seed         int64
}

// fit runs least-squares boosting: each round grows a tree on the current
// residuals of a row subsample (and, for colsample < 1, a feature subsample).
func (m *boostedTrees) fit(X [][]float64, y []float64, cfg boostConfig) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	n := len(X)
	rng := rand.New(rand.NewSource(cfg.seed))

	m.Base = stat.Mean(y, nil)
	m.LearningRate = cfg.learningRate
	m.Features = p
	m.Trees = make([]*Tree, 0, cfg.rounds)
	importance := make([]float64, p)

	current := make([]float64, n)
	for i := range current {
		current[i] = m.Base
	}
	residual := make([]float64, n)

	rows := int(cfg.subsample * float64(n))
	if rows < 1 {
		rows = 1
	}
	cols := int(cfg.colsample * float64(p))
	if cols < 1 {
		cols = 1
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for round := 0; round < cfg.rounds; round++ {
		for i := range residual {
			residual[i] = y[i] - current[i]
		}

		sample := all
		if rows < n {
			sample = rng.Perm(n)[:rows]
			sort.Ints(sample)
		}
		var features []int
		if cols < p {
			features = rng.Perm(p)[:cols]
			sort.Ints(features)
		}

		tree := growTree(X, residual, sample, cfg.tree, features, rng, importance)
		m.Trees = append(m.Trees, tree)
		for i, row := range X {
			current[i] += m.LearningRate * tree.Predict(row)
		}
	}

	m.Importance = normalize(importance)
	return nil
}

func (m *boostedTrees) predict(X [][]float64) ([]float64, error) {
	if m.Features == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	if err := checkRows(X, m.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		sum := 0.0
		for _, t := range m.Trees {
			sum += t.Predict(row)
		}
		out[i] = m.Base + m.LearningRate*sum
	}
	return out, nil
}

func readFraction(params Params, name string, def float64) (float64, error) {
	v, err := params.Float(name, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("%s must be in (0, 1], got %g", name, v)
	}
	return v, nil
}

// GradientBoosting is least-squares gradient boosting of CART trees
type GradientBoosting struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	Subsample       float64 `json:"subsample"`
	Seed            int64   `json:"seed"`

	Model boostedTrees `json:"model"`
}

// NewGradientBoosting creates a gradient boosting regressor. Recognised
// parameters: n_estimators (100), learning_rate (0.1), max_depth (3),
// subsample (1.0), min_samples_split (2), min_samples_leaf (1).
func NewGradientBoosting(params Params, seed int64) (*GradientBoosting, error) {
	gb := &GradientBoosting{Seed: seed}
	var err error
	if gb.NEstimators, err = params.Int("n_estimators", 100); err != nil {
		return nil, err
	}
	if gb.Model.LearningRate, err = params.Float("learning_rate", 0.1); err != nil {
		return nil, err
	}
	if gb.MaxDepth, err = params.Int("max_depth", 3); err != nil {
		return nil, err
	}
	if gb.MinSamplesSplit, err = params.Int("min_samples_split", 2); err != nil {
		return nil, err
	}
	if gb.MinSamplesLeaf, err = params.Int("min_samples_leaf", 1); err != nil {
		return nil, err
	}
	if gb.Subsample, err = readFraction(params, "subsample", 1.0); err != nil {
		return nil, err
	}
	if gb.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be positive, got %d", gb.NEstimators)
	}
	if gb.Model.LearningRate <= 0 {
		return nil, fmt.Errorf("learning_rate must be positive, got %g", gb.Model.LearningRate)
	}
	return gb, nil
}

// Kind returns the model kind
func (gb *GradientBoosting) Kind() models.ModelKind { return models.ModelKindGradientBoosting }

// Fit boosts NEstimators trees
func (gb *GradientBoosting) Fit(X [][]float64, y []float64) error {
	return gb.Model.fit(X, y, boostConfig{
		rounds:       gb.NEstimators,
		learningRate: gb.Model.LearningRate,
		subsample:    gb.Subsample,
		colsample:    1,
		seed:         gb.Seed,
		tree: treeParams{
			maxDepth:        gb.MaxDepth,
			minSamplesSplit: gb.MinSamplesSplit,
			minSamplesLeaf:  gb.MinSamplesLeaf,
		},
	})
}

// Predict sums the boosted trees
func (gb *GradientBoosting) Predict(X [][]float64) ([]float64, error) {
	return gb.Model.predict(X)
}

// FeatureImportances returns the normalized total split gain per feature
func (gb *GradientBoosting) FeatureImportances() []float64 {
	return gb.Model.Importance
}

// XGBoost is regularised second-order boosting under squared loss: leaf
// weights are shrunk by L2 (reg_lambda) and L1 (reg_alpha) penalties, rows
// and columns are subsampled per tree.
type XGBoost struct {
	NEstimators    int     `json:"n_estimators"`
	MaxDepth       int     `json:"max_depth"`
	Subsample      float64 `json:"subsample"`
	ColsampleTree  float64 `json:"colsample_bytree"`
	RegLambda      float64 `json:"reg_lambda"`
	RegAlpha       float64 `json:"reg_alpha"`
	MinChildWeight int     `json:"min_child_weight"`
	Seed           int64   `json:"seed"`

	Model boostedTrees `json:"model"`
}

// NewXGBoost creates an extreme gradient boosting regressor. Recognised
// parameters: n_estimators (300), learning_rate (0.05), max_depth (6),
// subsample (0.8), colsample_bytree (0.8), reg_lambda (1), reg_alpha (0),
// min_child_weight (1).
func NewXGBoost(params Params, seed int64) (*XGBoost, error) {
	xg := &XGBoost{Seed: seed}
	var err error
	if xg.NEstimators, err = params.Int("n_estimators", 300); err != nil {
		return nil, err
	}
	if xg.Model.LearningRate, err = params.Float("learning_rate", 0.05); err != nil {
		return nil, err
	}
	if xg.MaxDepth, err = params.Int("max_depth", 6); err != nil {
		return nil, err
	}
	if xg.Subsample, err = readFraction(params, "subsample", 0.8); err != nil {
		return nil, err
	}
	if xg.ColsampleTree, err = readFraction(params, "colsample_bytree", 0.8); err != nil {
		return nil, err
	}
	if xg.RegLambda, err = params.Float("reg_lambda", 1); err != nil {
		return nil, err
	}
	if xg.RegAlpha, err = params.Float("reg_alpha", 0); err != nil {
		return nil, err
	}
	if xg.MinChildWeight, err = params.Int("min_child_weight", 1); err != nil {
		return nil, err
	}
	if xg.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be positive, got %d", xg.NEstimators)
	}
	if xg.Model.LearningRate <= 0 {
		return nil, fmt.Errorf("learning_rate must be positive, got %g", xg.Model.LearningRate)
	}
	if xg.RegLambda < 0 || xg.RegAlpha < 0 {
		return nil, fmt.Errorf("regularisation must be non-negative")
	}
	return xg, nil
}

// Kind returns the model kind
func (xg *XGBoost) Kind() models.ModelKind { return models.ModelKindXGBoost }

// Fit boosts NEstimators regularised trees
func (xg *XGBoost) Fit(X [][]float64, y []float64) error {
	return xg.Model.fit(X, y, boostConfig{
		rounds:       xg.NEstimators,
		learningRate: xg.Model.LearningRate,
		subsample:    xg.Subsample,
		colsample:    xg.ColsampleTree,
		seed:         xg.Seed,
		tree: treeParams{
			maxDepth:        xg.MaxDepth,
			minSamplesSplit: 2,
			minSamplesLeaf:  xg.MinChildWeight,
			lambda:          xg.RegLambda,
			alpha:           xg.RegAlpha,
		},
	})
}

// Predict sums the boosted trees
func (xg *XGBoost) Predict(X [][]float64) ([]float64, error) {
	return xg.Model.predict(X)
}

// FeatureImportances returns the normalized total split gain per feature
func (xg *XGBoost) FeatureImportances() []float64 {
	return xg.Model.Importance
}
