package training

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Regressor is a model that maps feature rows onto a continuous target
type Regressor interface {
	// Kind returns the roster entry this regressor implements
	Kind() models.ModelKind

	// Fit trains the regressor on rows of X with targets y
	Fit(X [][]float64, y []float64) error

	// Predict returns one prediction per row of X
	Predict(X [][]float64) ([]float64, error)

	// FeatureImportances returns one non-negative weight per feature summing
	// to 1, or nil when the model has no notion of importance.
	FeatureImportances() []float64
}

// New builds an unfitted regressor of the given kind from hyperparameters
func New(kind models.ModelKind, params Params, seed int64) (Regressor, error) {
	switch kind {
	case models.ModelKindRidge:
		return NewRidge(params)
	case models.ModelKindSVR:
		return NewSVR(params, seed)
	case models.ModelKindRandomForest:
		return NewRandomForest(params, seed)
	case models.ModelKindGradientBoosting:
		return NewGradientBoosting(params, seed)
	case models.ModelKindXGBoost:
		return NewXGBoost(params, seed)
	default:
		return nil, fmt.Errorf("no regressor available for model kind: %s", kind)
	}
}

// envelope is the serialized form of a fitted regressor
type envelope struct {
	Kind  models.ModelKind `json:"kind"`
	State json.RawMessage  `json:"state"`
}

// Marshal serializes a fitted regressor
func Marshal(r Regressor) ([]byte, error) {
	state, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s state: %w", r.Kind(), err)
	}
	return json.Marshal(envelope{Kind: r.Kind(), State: state})
}

// Unmarshal restores a regressor written by Marshal
func Unmarshal(data []byte) (Regressor, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model envelope: %w", err)
	}

	var r Regressor
	switch env.Kind {
	case models.ModelKindRidge:
		r = &Ridge{}
	case models.ModelKindSVR:
		r = &SVR{}
	case models.ModelKindRandomForest:
		r = &RandomForest{}
	case models.ModelKindGradientBoosting:
		r = &GradientBoosting{}
	case models.ModelKindXGBoost:
		r = &XGBoost{}
	default:
		return nil, fmt.Errorf("unknown model kind in artifact: %q", env.Kind)
	}
	if err := json.Unmarshal(env.State, r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s state: %w", env.Kind, err)
	}
	return r, nil
}

// Params holds hyperparameters. Values are float64, string or nil; nil
// stands for "no limit" where a parameter allows it.
type Params map[string]interface{}

// Clone returns a shallow copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float reads a numeric parameter, returning def when absent
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("parameter %s must be a number, got %v", name, v)
	}
	return f, nil
}

// Int reads an integer parameter, returning def when absent and 0 when the
// value is nil.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok {
		return def, nil
	}
	if v == nil {
		return 0, nil
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %s must be an integer, got %v", name, v)
	}
	return int(f), nil
}

// maxFeatures resolves max_features against p features: "sqrt", "log2", a
// fraction in (0, 1], an absolute count, or nil for all features.
func (p Params) maxFeatures(def interface{}, n int) (int, error) {
	v, ok := p["max_features"]
	if !ok {
		v = def
	}
	k := n
	switch val := v.(type) {
	case nil:
	case string:
		switch strings.ToLower(val) {
		case "sqrt":
			k = int(math.Sqrt(float64(n)))
		case "log2":
			k = int(math.Log2(float64(n)))
		default:
			return 0, fmt.Errorf("unsupported max_features %q", val)
		}
	default:
		f, ok := toFloat(val)
		if !ok || f <= 0 {
			return 0, fmt.Errorf("invalid max_features %v", v)
		}
		if f <= 1 {
			k = int(f * float64(n))
		} else {
			k = int(f)
		}
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func checkXY(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("no training data provided")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("feature rows (%d) and targets (%d) differ", len(X), len(y))
	}
	p := len(X[0])
	for i, row := range X {
		if len(row) != p {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(row), p)
		}
	}
	return p, nil
}

func checkRows(X [][]float64, p int) error {
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), p)
		}
	}
	return nil
}

func normalize(weights []float64) []float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	out := make([]float64, len(weights))
	if total <= 0 {
		return out
	}
	for i, w := range weights {
		out[i] = w / total
	}
	return out
}
