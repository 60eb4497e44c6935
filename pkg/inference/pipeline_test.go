package inference

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/classify"
	"github.com/mimir-aip/waterquality/pkg/dataset"
	"github.com/mimir-aip/waterquality/pkg/features"
	"github.com/mimir-aip/waterquality/pkg/mlmodel/training"
	"github.com/mimir-aip/waterquality/pkg/models"
)

var testHeader = []string{"Station", "Temperature ⁰C", "pH", "Conductivity (μmhos/cm)", "Nitrate N (mg/L)",
	"Faecal Coliform (MPN/100ml)", "Total Coliform (MPN/100ml)", "Total Dissolved Solids (mg/L)", "Fluoride (mg/L)", "WQI"}

func sampleRows(n int, seed int64) ([]models.CanonicalSample, []float64, [][]string) {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]models.CanonicalSample, n)
	y := make([]float64, n)
	rows := make([][]string, n)
	for i := range samples {
		s := models.CanonicalSample{
			Temp:          15 + rng.Float64()*15,
			PH:            6 + rng.Float64()*3,
			Conductivity:  100 + rng.Float64()*900,
			Nitrate:       rng.Float64() * 10,
			FecalColiform: rng.Float64() * 500,
			TotalColiform: rng.Float64() * 1500,
			TDS:           50 + rng.Float64()*700,
			Fluoride:      rng.Float64() * 1.5,
		}
		samples[i] = s
		y[i] = 10 + 0.04*s.TDS + 3*s.Nitrate + 0.02*s.FecalColiform
		row := []string{fmt.Sprintf("S%03d", i)}
		for _, v := range s.Values() {
			row = append(row, fmt.Sprintf("%g", v))
		}
		rows[i] = append(row, fmt.Sprintf("%g", y[i]))
	}
	return samples, y, rows
}

func fittedModel(t *testing.T) *Model {
	t.Helper()
	samples, y, _ := sampleRows(100, 7)
	r, err := training.New(models.ModelKindRidge, training.Params{"alpha": 1.0}, 42)
	require.NoError(t, err)
	require.NoError(t, r.Fit(features.Matrix(samples), y))

	payload, err := EncodeModel(r, map[string]interface{}{"alpha": 1.0}, features.Names)
	require.NoError(t, err)
	model, err := DecodeModel(payload)
	require.NoError(t, err)
	return model
}

func TestEncodeDecodeModel(t *testing.T) {
	model := fittedModel(t)
	assert.Equal(t, models.ModelKindRidge, model.Kind)
	assert.Equal(t, features.Names, model.Features)
	assert.Equal(t, 1.0, model.Hyperparameters["alpha"])
	assert.NoError(t, model.CheckFeatures())
}

func TestDecodeModelRejectsGarbage(t *testing.T) {
	_, err := DecodeModel([]byte("not json"))
	assert.Error(t, err)
}

func TestFeatureSkew(t *testing.T) {
	model := fittedModel(t)
	model.Features = model.Features[:15]

	_, err := NewPipeline(model)
	var skew *FeatureSkewError
	require.ErrorAs(t, err, &skew)
	assert.Len(t, skew.Expected, 16)
	assert.Len(t, skew.Actual, 15)
}

func TestPredictTable(t *testing.T) {
	pipeline, err := NewPipeline(fittedModel(t))
	require.NoError(t, err)

	_, _, rows := sampleRows(100, 11)
	table := &dataset.Table{Header: testHeader[:9], Rows: make([][]string, len(rows))}
	for i, row := range rows {
		table.Rows[i] = row[:9]
	}

	batch, err := pipeline.PredictTable(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, batch.Results, 100)
	assert.Equal(t, 0, batch.Failed)
	assert.Equal(t, 100, batch.Succeeded())

	labels := classify.Labels()
	total := 0
	for _, r := range batch.Results {
		assert.False(t, math.IsNaN(r.PredictedWQI) || math.IsInf(r.PredictedWQI, 0))
		assert.Contains(t, labels, r.Class)
	}
	for _, n := range batch.Distribution {
		total += n
	}
	assert.Equal(t, 100, total)
	assert.Len(t, batch.Distribution, 5)

	stats := batch.Statistics
	require.NotNil(t, stats)
	assert.LessOrEqual(t, stats.Min, stats.Mean)
	assert.LessOrEqual(t, stats.Mean, stats.Max)
	assert.LessOrEqual(t, stats.Min, stats.Median)
	assert.LessOrEqual(t, stats.Median, stats.Max)

	assert.Equal(t, ColumnPredictedClass, batch.Header[len(batch.Header)-1])
	assert.Equal(t, map[string]string{"Station": "S000"}, batch.Results[0].Columns)
}

func TestPredictTableDropsTargetAndKeepsGoingOnBadRows(t *testing.T) {
	pipeline, err := NewPipeline(fittedModel(t))
	require.NoError(t, err)

	_, _, rows := sampleRows(5, 3)
	rows[2][2] = "acidic"
	rows[4][2] = "15"
	table := &dataset.Table{Header: testHeader, Rows: rows}

	batch, err := pipeline.PredictTable(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Failed)
	assert.Equal(t, 3, batch.Succeeded())
	assert.NotContains(t, batch.Header, "WQI")
	assert.Equal(t, ColumnError, batch.Header[len(batch.Header)-1])

	assert.Contains(t, batch.Results[2].Error, "pH")
	assert.Contains(t, batch.Results[2].Error, "line 4:")
	assert.Contains(t, batch.Results[4].Error, "pH")
	assert.Empty(t, batch.Results[0].Error)

	var buf bytes.Buffer
	require.NoError(t, batch.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "Station,"))
	assert.True(t, strings.HasSuffix(lines[0], "predicted_WQI,predicted_WQI_Class,error"))

	records := batch.Records()
	assert.Equal(t, "", records[2][len(records[2])-3])
	assert.NotEmpty(t, records[0][len(records[0])-3])
	assert.Len(t, records[0], len(batch.Header))
}

func TestPredictTableMissingColumnIsFatal(t *testing.T) {
	pipeline, err := NewPipeline(fittedModel(t))
	require.NoError(t, err)

	table := &dataset.Table{Header: testHeader[:8], Rows: [][]string{{"a", "1", "7", "1", "1", "1", "1", "1"}}}
	_, err = pipeline.PredictTable(context.Background(), table)
	var missing *dataset.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, err.Error(), "Fluoride")
}

func TestPredictTableCancelled(t *testing.T) {
	pipeline, err := NewPipeline(fittedModel(t))
	require.NoError(t, err)

	_, _, rows := sampleRows(3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipeline.PredictTable(ctx, &dataset.Table{Header: testHeader, Rows: rows})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPredictSample(t *testing.T) {
	pipeline, err := NewPipeline(fittedModel(t))
	require.NoError(t, err)

	raw := models.RawSample{
		"Temp": "25", "pH": "7.2", "Conductivity": "400", "Nitrate": "2",
		"Fecal_Coliform": "10", "Total_Coliform": "50", "TDS": "300", "Fluoride": "0.5",
	}
	wqi, class, err := pipeline.PredictSample(raw)
	require.NoError(t, err)
	assert.Equal(t, classify.Classify(wqi), class)

	again, _, err := pipeline.PredictSample(raw)
	require.NoError(t, err)
	assert.Equal(t, wqi, again)

	delete(raw, "Fluoride")
	_, _, err = pipeline.PredictSample(raw)
	var missing *dataset.MissingColumnError
	assert.ErrorAs(t, err, &missing)
}

func TestSummarize(t *testing.T) {
	assert.Nil(t, Summarize(nil))

	stats := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, stats.Mean, 1e-12)
	assert.InDelta(t, 4.5, stats.Median, 1e-12)
	assert.InDelta(t, 2.0, stats.Std, 1e-12)
	assert.Equal(t, 2.0, stats.Min)
	assert.Equal(t, 9.0, stats.Max)
}
