package training

import (
	"fmt"
	"math"
	"math/rand"
)

// Fold is one train/validation partition of row indices
type Fold struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles n row indices and holds out ceil(testSize*n) of
// them for testing.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %g", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 2 {
		return nil, nil, fmt.Errorf("%w: %d rows cannot be split with test size %g", ErrInsufficientData, n, testSize)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// KFold shuffles n row indices into k folds. The first n%k folds get one
// extra validation row.
func KFold(n, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d rows cannot be split into %d folds", ErrInsufficientData, n, k)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	folds := make([]Fold, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		end := start + size
		test := append([]int{}, perm[start:end]...)
		train := make([]int, 0, n-size)
		train = append(train, perm[:start]...)
		train = append(train, perm[end:]...)
		folds[f] = Fold{Train: train, Test: test}
		start = end
	}
	return folds, nil
}

// subset gathers the rows idx of X and y
func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	sx := make([][]float64, len(idx))
	sy := make([]float64, len(idx))
	for i, j := range idx {
		sx[i], sy[i] = X[j], y[j]
	}
	return sx, sy
}
