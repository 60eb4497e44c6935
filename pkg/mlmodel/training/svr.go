package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// SVRMaxSamples bounds the kernel matrix. Larger training sets are
// subsampled deterministically before fitting.
var SVRMaxSamples = 1500

const (
	svrMaxEpochs = 500
	svrTolerance = 1e-5
)

// SVR is epsilon-insensitive support vector regression with an RBF kernel,
// solved in the dual by coordinate descent. The bias is absorbed into the
// kernel (K+1) and the target is centered beforehand.
type SVR struct {
	C         float64 `json:"C"`
	Epsilon   float64 `json:"epsilon"`
	GammaMode string  `json:"gamma_mode"`
	Seed      int64   `json:"seed"`

	Gamma     float64        `json:"gamma"`
	Scaler    StandardScaler `json:"scaler"`
	Support   [][]float64    `json:"support"`
	DualCoef  []float64      `json:"dual_coef"`
	Intercept float64        `json:"intercept"`
	Features  int            `json:"features"`
}

// NewSVR creates a kernel SVR. Recognised parameters: C (1.0), epsilon
// (0.1), gamma ("scale", "auto" or a positive number).
func NewSVR(params Params, seed int64) (*SVR, error) {
	c, err := params.Float("C", 1.0)
	if err != nil {
		return nil, err
	}
	eps, err := params.Float("epsilon", 0.1)
	if err != nil {
		return nil, err
	}
	if c <= 0 {
		return nil, fmt.Errorf("C must be positive, got %g", c)
	}
	if eps < 0 {
		return nil, fmt.Errorf("epsilon must be non-negative, got %g", eps)
	}

	s := &SVR{C: c, Epsilon: eps, GammaMode: "scale", Seed: seed}
	switch g := params["gamma"].(type) {
	case nil:
	case string:
		mode := strings.ToLower(g)
		if mode != "scale" && mode != "auto" {
			return nil, fmt.Errorf("unsupported gamma %q", g)
		}
		s.GammaMode = mode
	default:
		f, ok := toFloat(g)
		if !ok || f <= 0 {
			return nil, fmt.Errorf("invalid gamma %v", g)
		}
		s.GammaMode = ""
		s.Gamma = f
	}
	return s, nil
}

// Kind returns the model kind
func (s *SVR) Kind() models.ModelKind { return models.ModelKindSVR }

// Fit runs dual coordinate descent on
//
//	min ½βᵀKβ − yᵀβ + ε‖β‖₁  subject to −C ≤ βᵢ ≤ C
func (s *SVR) Fit(X [][]float64, y []float64) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(s.Seed))

	if len(X) > SVRMaxSamples {
		keep := rng.Perm(len(X))[:SVRMaxSamples]
		sort.Ints(keep)
		subX := make([][]float64, len(keep))
		subY := make([]float64, len(keep))
		for i, idx := range keep {
			subX[i], subY[i] = X[idx], y[idx]
		}
		X, y = subX, subY
	}

	s.Features = p
	s.Scaler.Fit(X)
	scaled := s.Scaler.Transform(X)
	n := len(scaled)

	switch s.GammaMode {
	case "scale":
		flat := make([]float64, 0, n*p)
		for _, row := range scaled {
			flat = append(flat, row...)
		}
		variance := stat.PopVariance(flat, nil)
		if variance > 0 {
			s.Gamma = 1 / (float64(p) * variance)
		} else {
			s.Gamma = 1
		}
	case "auto":
		s.Gamma = 1 / float64(p)
	}

	s.Intercept = stat.Mean(y, nil)
	target := make([]float64, n)
	for i, v := range y {
		target[i] = v - s.Intercept
	}

	kernel := make([][]float64, n)
	for i := range kernel {
		kernel[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		kernel[i][i] = 2
		for j := i + 1; j < n; j++ {
			k := s.rbf(scaled[i], scaled[j]) + 1
			kernel[i][j] = k
			kernel[j][i] = k
		}
	}

	beta := make([]float64, n)
	// grad holds Kβ
	grad := make([]float64, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < svrMaxEpochs; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		maxDelta, maxBeta := 0.0, 0.0
		for _, i := range order {
			kii := kernel[i][i]
			z := beta[i] - (grad[i]-target[i])/kii
			next := clamp(softThreshold(z, s.Epsilon/kii), -s.C, s.C)
			delta := next - beta[i]
			if delta == 0 {
				continue
			}
			beta[i] = next
			row := kernel[i]
			for j := range grad {
				grad[j] += delta * row[j]
			}
			maxDelta = math.Max(maxDelta, math.Abs(delta))
			maxBeta = math.Max(maxBeta, math.Abs(next))
		}
		if maxDelta <= svrTolerance*(1+maxBeta) {
			break
		}
	}

	s.Support = s.Support[:0]
	s.DualCoef = s.DualCoef[:0]
	for i, b := range beta {
		if b != 0 {
			s.Support = append(s.Support, scaled[i])
			s.DualCoef = append(s.DualCoef, b)
		}
	}
	return nil
}

// Predict evaluates Σ βᵢ(k(svᵢ, x)+1) + ȳ
func (s *SVR) Predict(X [][]float64) ([]float64, error) {
	if s.Features == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	if err := checkRows(X, s.Features); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		x := s.Scaler.TransformRow(row)
		sum := s.Intercept
		for k, sv := range s.Support {
			sum += s.DualCoef[k] * (s.rbf(sv, x) + 1)
		}
		out[i] = sum
	}
	return out, nil
}

// FeatureImportances is not defined for kernel models
func (s *SVR) FeatureImportances() []float64 { return nil }

func (s *SVR) rbf(a, b []float64) float64 {
	d := 0.0
	for j := range a {
		diff := a[j] - b[j]
		d += diff * diff
	}
	return math.Exp(-s.Gamma * d)
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	default:
		return 0
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
