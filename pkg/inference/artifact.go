package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mimir-aip/waterquality/pkg/features"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/models"
)

// FeatureSkewError is returned when a model was trained on a feature list
// that differs from the one this build engineers.
type FeatureSkewError struct {
	Expected []string
	Actual   []string
}

func (e *FeatureSkewError) Error() string {
	return fmt.Sprintf("model feature list does not match: expected [%s], model has [%s]",
		strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}

// artifact is the payload stored for every trained model
type artifact struct {
	Kind            models.ModelKind       `json:"kind"`
	Features        []string               `json:"features"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	Model           json.RawMessage        `json:"model"`
}

// Model is a fitted regressor together with the feature list it expects
type Model struct {
	Kind            models.ModelKind
	Features        []string
	Hyperparameters map[string]interface{}
	Regressor       training.Regressor
}

// EncodeModel serializes a fitted regressor into an artifact payload
func EncodeModel(r training.Regressor, params map[string]interface{}, featureNames []string) ([]byte, error) {
	state, err := training.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		Kind:            r.Kind(),
		Features:        featureNames,
		Hyperparameters: params,
		Model:           state,
	})
}

// DecodeModel restores a model from an artifact payload
func DecodeModel(payload []byte) (*Model, error) {
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	r, err := training.Unmarshal(a.Model)
	if err != nil {
		return nil, err
	}
	if a.Kind != "" && a.Kind != r.Kind() {
		return nil, fmt.Errorf("artifact kind %s does not match model kind %s", a.Kind, r.Kind())
	}
	return &Model{
		Kind:            r.Kind(),
		Features:        a.Features,
		Hyperparameters: a.Hyperparameters,
		Regressor:       r,
	}, nil
}

// CheckFeatures returns a *FeatureSkewError when the model's feature list is
// not the one produced by the feature engineer
func (m *Model) CheckFeatures() error {
	if !features.SameNames(m.Features) {
		return &FeatureSkewError{
			Expected: append([]string(nil), features.Names...),
			Actual:   append([]string(nil), m.Features...),
		}
	}
	return nil
}
