package training

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// RandomForest averages regression trees grown on bootstrap samples with
// per-split feature subsampling.
type RandomForest struct {
	NEstimators     int         `json:"n_estimators"`
	MaxDepth        int         `json:"max_depth"`
	MinSamplesSplit int         `json:"min_samples_split"`
	MinSamplesLeaf  int         `json:"min_samples_leaf"`
	MaxFeatures     interface{} `json:"max_features"`
	Seed            int64       `json:"seed"`

	Trees      []*Tree   `json:"trees"`
	Importance []float64 `json:"importance"`
	Features   int       `json:"features"`
}

// NewRandomForest creates a random forest. Recognised parameters:
// n_estimators (300), max_depth (nil), min_samples_split (2),
// min_samples_leaf (1), max_features (nil = all features).
func NewRandomForest(params Params, seed int64) (*RandomForest, error) {
	rf := &RandomForest{Seed: seed, MaxFeatures: params["max_features"]}
	var err error
	if rf.NEstimators, err = params.Int("n_estimators", 300); err != nil {
		return nil, err
	}
	if rf.MaxDepth, err = params.Int("max_depth", 0); err != nil {
		return nil, err
	}
	if rf.MinSamplesSplit, err = params.Int("min_samples_split", 2); err != nil {
		return nil, err
	}
	if rf.MinSamplesLeaf, err = params.Int("min_samples_leaf", 1); err != nil {
		return nil, err
	}
	if rf.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be positive, got %d", rf.NEstimators)
	}
	if _, err := params.maxFeatures(nil, 1); err != nil {
		return nil, err
	}
	return rf, nil
}

// Kind returns the model kind
func (rf *RandomForest) Kind() models.ModelKind { return models.ModelKindRandomForest }

// Fit grows the trees in parallel. Every tree draws from its own seeded
// source so the result does not depend on scheduling.
func (rf *RandomForest) Fit(X [][]float64, y []float64) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	maxFeatures, err := Params{"max_features": rf.MaxFeatures}.maxFeatures(nil, p)
	if err != nil {
		return err
	}
	tp := treeParams{
		maxDepth:        rf.MaxDepth,
		minSamplesSplit: rf.MinSamplesSplit,
		minSamplesLeaf:  rf.MinSamplesLeaf,
		maxFeatures:     maxFeatures,
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NEstimators)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	n := len(X)
	trees := make([]*Tree, rf.NEstimators)
	importances := make([][]float64, rf.NEstimators)

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for t := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()

			treeRng := rand.New(rand.NewSource(seeds[t]))
			sample := make([]int, n)
			for i := range sample {
				sample[i] = treeRng.Intn(n)
			}
			importances[t] = make([]float64, p)
			trees[t] = growTree(X, y, sample, tp, nil, treeRng, importances[t])
		}(t)
	}
	wg.Wait()

	total := make([]float64, p)
	for _, imp := range importances {
		for j, v := range normalize(imp) {
			total[j] += v
		}
	}
	rf.Trees = trees
	rf.Importance = normalize(total)
	rf.Features = p
	return nil
}

// Predict averages the tree outputs
func (rf *RandomForest) Predict(X [][]float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	if err := checkRows(X, rf.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		sum := 0.0
		for _, t := range rf.Trees {
			sum += t.Predict(row)
		}
		out[i] = sum / float64(len(rf.Trees))
	}
	return out, nil
}

// FeatureImportances returns the mean normalized split gain per feature
func (rf *RandomForest) FeatureImportances() []float64 {
	return rf.Importance
}
