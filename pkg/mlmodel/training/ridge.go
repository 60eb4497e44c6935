package training

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Ridge is L2-regularised least squares on standardized features
type Ridge struct {
	Alpha     float64        `json:"alpha"`
	Scaler    StandardScaler `json:"scaler"`
	Coef      []float64      `json:"coef"`
	Intercept float64        `json:"intercept"`
}

// NewRidge creates a ridge regressor. Recognised parameters: alpha (1.0).
func NewRidge(params Params) (*Ridge, error) {
	alpha, err := params.Float("alpha", 1.0)
	if err != nil {
		return nil, err
	}
	if alpha < 0 {
		return nil, fmt.Errorf("alpha must be non-negative, got %g", alpha)
	}
	return &Ridge{Alpha: alpha}, nil
}

// Kind returns the model kind
func (r *Ridge) Kind() models.ModelKind { return models.ModelKindRidge }

// Fit solves (XᵀX + αI)w = Xᵀ(y - ȳ) by Cholesky factorisation
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	p, err := checkXY(X, y)
	if err != nil {
		return err
	}

	r.Scaler.Fit(X)
	scaled := r.Scaler.Transform(X)
	n := len(scaled)

	r.Intercept = stat.Mean(y, nil)
	centered := make([]float64, n)
	for i, v := range y {
		centered[i] = v - r.Intercept
	}

	x := mat.NewDense(n, p, nil)
	for i, row := range scaled {
		x.SetRow(i, row)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	gram := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := xtx.At(i, j)
			if i == j {
				v += r.Alpha
			}
			gram.SetSym(i, j, v)
		}
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, centered))

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return fmt.Errorf("ridge system is not positive definite (alpha=%g)", r.Alpha)
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return fmt.Errorf("failed to solve ridge system: %w", err)
	}

	r.Coef = make([]float64, p)
	for j := range r.Coef {
		r.Coef[j] = w.AtVec(j)
	}
	return nil
}

// Predict returns ŷ = w·scale(x) + b for each row
func (r *Ridge) Predict(X [][]float64) ([]float64, error) {
	if r.Coef == nil {
		return nil, fmt.Errorf("model not trained")
	}
	if err := checkRows(X, len(r.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = floats.Dot(r.Coef, r.Scaler.TransformRow(row)) + r.Intercept
	}
	return out, nil
}

// FeatureImportances is not defined for linear models
func (r *Ridge) FeatureImportances() []float64 { return nil }
