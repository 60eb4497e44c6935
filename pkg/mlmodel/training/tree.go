package training

import (
	"math/rand"
	"sort"
)

// minGain is the smallest score improvement that justifies a split
const minGain = 1e-12

// TreeNode is one node of a regression tree stored in a flat slice. Leaves
// have Left == -1.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict walks the tree for one row
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// treeParams controls tree growth
type treeParams struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // features tried per split, 0 means all allowed
	lambda          float64
	alpha           float64
}

// treeBuilder grows a tree on residual targets. With lambda = alpha = 0 the
// leaf value is the mean residual and the split score is the reduction in
// squared error; otherwise leaves are shrunk as in second-order boosting
// under squared loss.
type treeBuilder struct {
	X          [][]float64
	target     []float64
	params     treeParams
	features   []int
	rng        *rand.Rand
	nodes      []TreeNode
	importance []float64
}

// growTree fits a tree on rows idx of X against target. features restricts
// the candidate split features (nil allows all). importance receives the
// total gain per feature.
func growTree(X [][]float64, target []float64, idx []int, params treeParams, features []int, rng *rand.Rand, importance []float64) *Tree {
	if features == nil {
		features = make([]int, len(X[0]))
		for j := range features {
			features[j] = j
		}
	}
	b := &treeBuilder{
		X:          X,
		target:     target,
		params:     params,
		features:   features,
		rng:        rng,
		importance: importance,
	}
	b.build(idx, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) leafValue(sum float64, n int) float64 {
	return softThreshold(sum, b.params.alpha) / (float64(n) + b.params.lambda)
}

func (b *treeBuilder) score(sum float64, n int) float64 {
	s := softThreshold(sum, b.params.alpha)
	return s * s / (float64(n) + b.params.lambda)
}

// build grows the subtree for rows idx and returns its node index
func (b *treeBuilder) build(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += b.target[i]
	}
	n := len(idx)

	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Left: -1, Right: -1, Value: b.leafValue(sum, n)})

	p := b.params
	if (p.maxDepth > 0 && depth >= p.maxDepth) || n < p.minSamplesSplit || n < 2*p.minSamplesLeaf || b.isHomogeneous(idx) {
		return self
	}

	feature, threshold, gain := b.findBestSplit(idx, sum)
	if gain <= minGain {
		return self
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if b.importance != nil {
		b.importance[feature] += gain
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// findBestSplit scans sorted feature values once per candidate feature
func (b *treeBuilder) findBestSplit(idx []int, total float64) (int, float64, float64) {
	n := len(idx)
	parent := b.score(total, n)
	minLeaf := b.params.minSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	candidates := b.features
	if k := b.params.maxFeatures; k > 0 && k < len(candidates) {
		perm := b.rng.Perm(len(candidates))[:k]
		candidates = make([]int, k)
		for i, j := range perm {
			candidates[i] = b.features[j]
		}
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	order := make([]int, n)
	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		left := 0.0
		for k := 1; k < n; k++ {
			left += b.target[order[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[order[k-1]][f], b.X[order[k]][f]
			if lo == hi {
				continue
			}
			gain := b.score(left, k) + b.score(total-left, n-k) - parent
			if gain > bestGain {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				bestFeature, bestThreshold, bestGain = f, threshold, gain
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, 0
	}
	return bestFeature, bestThreshold, bestGain
}

func (b *treeBuilder) isHomogeneous(idx []int) bool {
	first := b.target[idx[0]]
	for _, i := range idx[1:] {
		if b.target[i] != first {
			return false
		}
	}
	return true
}
