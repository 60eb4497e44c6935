// Package inference scores raw datasets with a trained model: every row is
// normalized, engineered, predicted and classified independently.
package inference

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/classify"
	"github.com/mimir-aip/waterquality/pkg/dataset"
	"github.com/mimir-aip/waterquality/pkg/features"
	"github.com/mimir-aip/waterquality/pkg/models"
)

// Output column names appended to every scored row
const (
	ColumnPredictedWQI   = "predicted_WQI"
	ColumnPredictedClass = "predicted_WQI_Class"
	ColumnError          = "error"
)

// Pipeline scores datasets with one model
type Pipeline struct {
	model  *Model
	logger *zap.Logger
}

// NewPipeline creates a pipeline after checking the model's feature list
func NewPipeline(model *Model) (*Pipeline, error) {
	if err := model.CheckFeatures(); err != nil {
		return nil, err
	}
	return &Pipeline{
		model:  model,
		logger: zap.L().Named("inference").With(zap.String("model", string(model.Kind))),
	}, nil
}

// Model returns the model used by the pipeline
func (p *Pipeline) Model() *Model {
	return p.model
}

// Batch is the scored form of a table
type Batch struct {
	Header       []string
	Results      []*models.PredictionResult
	Statistics   *models.PredictionStats
	Distribution map[models.WQIClass]int
	Failed       int

	outputColumns []int
	rows          [][]string
}

// Succeeded returns the number of rows that received a prediction
func (b *Batch) Succeeded() int {
	return len(b.Results) - b.Failed
}

// PredictSample scores a single raw sample
func (p *Pipeline) PredictSample(raw models.RawSample) (float64, models.WQIClass, error) {
	sample, err := dataset.Normalize(raw)
	if err != nil {
		return 0, "", err
	}
	preds, err := p.model.Regressor.Predict([][]float64{features.Values(features.Engineer(sample))})
	if err != nil {
		return 0, "", fmt.Errorf("failed to predict: %w", err)
	}
	if !finite(preds[0]) {
		return 0, "", fmt.Errorf("model produced a non-finite prediction")
	}
	return preds[0], classify.Classify(preds[0]), nil
}

// PredictTable scores every row of t. A header that cannot be resolved is
// fatal; a malformed row yields a result carrying an error and the batch
// continues.
func (p *Pipeline) PredictTable(ctx context.Context, t *dataset.Table) (*Batch, error) {
	schema, err := dataset.Resolve(t.Header)
	if err != nil {
		return nil, err
	}

	outputColumns := schema.OutputColumns()
	passthrough := schema.Passthrough()
	batch := &Batch{
		Results:       make([]*models.PredictionResult, len(t.Rows)),
		outputColumns: outputColumns,
		rows:          t.Rows,
	}

	var X [][]float64
	var scored []int
	for i, row := range t.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		result := &models.PredictionResult{Row: i, Columns: make(map[string]string, len(passthrough))}
		for _, col := range passthrough {
			if col < len(row) {
				result.Columns[t.Header[col]] = row[col]
			}
		}
		batch.Results[i] = result

		sample, err := schema.Canonical(row, i)
		if err != nil {
			result.Error = dataset.AtLine(err, t, i).Error()
			continue
		}
		X = append(X, features.Values(features.Engineer(sample)))
		scored = append(scored, i)
	}

	if len(X) > 0 {
		preds, err := p.model.Regressor.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("failed to predict: %w", err)
		}
		for j, i := range scored {
			if !finite(preds[j]) {
				batch.Results[i].Error = "model produced a non-finite prediction"
				continue
			}
			batch.Results[i].PredictedWQI = preds[j]
			batch.Results[i].Class = classify.Classify(preds[j])
		}
	}

	var predicted []float64
	for _, r := range batch.Results {
		if r.Failed() {
			batch.Failed++
			continue
		}
		predicted = append(predicted, r.PredictedWQI)
	}
	batch.Statistics = Summarize(predicted)
	batch.Distribution = classify.Histogram(predicted)

	batch.Header = make([]string, 0, len(outputColumns)+3)
	for _, col := range outputColumns {
		batch.Header = append(batch.Header, t.Header[col])
	}
	batch.Header = append(batch.Header, ColumnPredictedWQI, ColumnPredictedClass)
	if batch.Failed > 0 {
		batch.Header = append(batch.Header, ColumnError)
	}

	p.logger.Info("Scored dataset",
		zap.Int("rows", len(t.Rows)),
		zap.Int("predicted", len(predicted)),
		zap.Int("failed", batch.Failed))
	return batch, nil
}

// Records returns the output rows: input columns without WQI followed by
// the prediction columns
func (b *Batch) Records() [][]string {
	out := make([][]string, len(b.Results))
	for i, r := range b.Results {
		record := make([]string, 0, len(b.Header))
		for _, col := range b.outputColumns {
			if col < len(b.rows[i]) {
				record = append(record, b.rows[i][col])
			} else {
				record = append(record, "")
			}
		}
		if r.Failed() {
			record = append(record, "", "")
		} else {
			record = append(record, strconv.FormatFloat(r.PredictedWQI, 'f', -1, 64), string(r.Class))
		}
		if b.Failed > 0 {
			record = append(record, r.Error)
		}
		out[i] = record
	}
	return out
}

// WriteCSV writes the scored dataset
func (b *Batch) WriteCSV(w io.Writer) error {
	return dataset.WriteCSV(w, b.Header, b.Records())
}

// Sample returns at most n results for previews
func (b *Batch) Sample(n int) []*models.PredictionResult {
	if n <= 0 || n >= len(b.Results) {
		return b.Results
	}
	return b.Results[:n]
}

// Summarize computes the summary statistics of predicted values. It returns
// nil for an empty slice. Std is the population standard deviation.
func Summarize(values []float64) *models.PredictionStats {
	if len(values) == 0 {
		return nil
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return &models.PredictionStats{
		Mean:   mean,
		Median: dataset.Median(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Std:    std,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
