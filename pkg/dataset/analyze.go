package dataset

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Analyze profiles a table: per-column types, missing counts and summary
// statistics, plus whether it can be used for training or prediction.
func Analyze(t *Table) *models.DatasetAnalysis {
	a := &models.DatasetAnalysis{
		Rows:          len(t.Rows),
		Columns:       len(t.Header),
		ColumnNames:   append([]string{}, t.Header...),
		DTypes:        make(map[string]string, len(t.Header)),
		MissingValues: make(map[string]int, len(t.Header)),
		Statistics:    make(map[string]*models.ColumnStats),
	}

	for j, name := range t.Header {
		var values []float64
		missing := 0
		numeric := true
		integral := true
		for _, row := range t.Rows {
			raw := strings.TrimSpace(cell(row, j))
			if isMissing(raw) {
				missing++
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
				numeric = false
				continue
			}
			if v != math.Trunc(v) {
				integral = false
			}
			values = append(values, v)
		}

		a.MissingValues[name] = missing
		switch {
		case !numeric || len(values) == 0:
			a.DTypes[name] = "object"
			continue
		case integral && missing == 0:
			a.DTypes[name] = "int64"
		default:
			a.DTypes[name] = "float64"
		}
		a.Statistics[name] = describe(values)
	}

	validation := models.DatasetValidation{MissingFeatures: MissingColumns(t.Header)}
	validation.HasAllFeatures = len(validation.MissingFeatures) == 0
	validation.HasTarget = t.Column(models.ColumnWQI) >= 0
	validation.ReadyForPrediction = validation.HasAllFeatures && len(t.Rows) > 0
	validation.ReadyForTraining = validation.ReadyForPrediction && validation.HasTarget
	a.Validation = validation

	if schema, err := Resolve(t.Header); err == nil {
		a.ResolvedNames = schema.Resolved()
	}
	return a
}

func describe(values []float64) *models.ColumnStats {
	cs := &models.ColumnStats{
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		Min:   Quantile(values, 0),
		P25:   Quantile(values, 0.25),
		P50:   Quantile(values, 0.5),
		P75:   Quantile(values, 0.75),
		Max:   Quantile(values, 1),
	}
	if len(values) > 1 {
		cs.Std = stat.StdDev(values, nil)
	}
	return cs
}
