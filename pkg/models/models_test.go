package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelKind(t *testing.T) {
	tests := []struct {
		in   string
		want ModelKind
	}{
		{"xgboost", ModelKindXGBoost},
		{"XGBoost", ModelKindXGBoost},
		{"RandomForest", ModelKindRandomForest},
		{"random_forest", ModelKindRandomForest},
		{" Ridge ", ModelKindRidge},
		{"svr", ModelKindSVR},
		{"GradientBoosting", ModelKindGradientBoosting},
	}
	for _, tt := range tests {
		got, err := ParseModelKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseModelKind("LinearRegression")
	assert.Error(t, err)
}

func TestCanonicalSampleSet(t *testing.T) {
	var s CanonicalSample
	for i, col := range CanonicalColumns {
		require.True(t, s.Set(col, float64(i+1)), col)
	}
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, s.Values())
	assert.False(t, s.Set("Turbidity", 1))
}

func TestTrainingConfigValidate(t *testing.T) {
	cfg := TrainingConfig{CVFolds: 5, TestSize: 0.2, RandomSeed: 42, TuningIterations: 30}
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.CVFolds = 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TestSize = 1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.TuningIterations = 0
	assert.Error(t, bad.Validate())
}

func TestTrainingRunBest(t *testing.T) {
	run := &TrainingRun{Models: []*ModelRecord{
		{Kind: ModelKindRidge, Status: ModelStatusTrained},
		{Kind: ModelKindSVR, Status: ModelStatusTrained, IsBest: true},
		{Kind: ModelKindXGBoost, Status: ModelStatusFailed},
	}}
	require.NotNil(t, run.Best())
	assert.Equal(t, ModelKindSVR, run.Best().Kind)
	assert.Equal(t, 2, run.ModelsTrained())
}

func TestPredictRequestValidate(t *testing.T) {
	req := &PredictRequest{DatasetPath: "/tmp/x.csv"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "/tmp/x.csv", req.DatasetFile)

	req = &PredictRequest{DatasetPath: "/tmp/x.csv", ModelKind: "nope"}
	assert.Error(t, req.Validate())

	assert.Error(t, (&PredictRequest{}).Validate())
}

func TestJobStatusDone(t *testing.T) {
	assert.False(t, JobStatusQueued.Done())
	assert.False(t, JobStatusRunning.Done())
	assert.True(t, JobStatusCompleted.Done())
	assert.True(t, JobStatusFailed.Done())
}
