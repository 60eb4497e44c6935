package training

import (
	"math"

	"github.com/sjwhitworth/golearn/evaluation"

	"github.com/mimir-aip/waterquality/pkg/classify"
)

// mapeEpsilon keeps the percentage error finite for zero targets
const mapeEpsilon = 1e-10

// RegressionMetrics are the held-out scores of a fitted regressor
type RegressionMetrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
}

// CalculateRegressionMetrics scores predictions against actual values. MAPE
// is a percentage capped at 100.
func CalculateRegressionMetrics(predictions, actual []float64) RegressionMetrics {
	n := float64(len(actual))
	if n == 0 || len(predictions) != len(actual) {
		return RegressionMetrics{}
	}

	var sumSq, sumAbs, sumPct, sumActual float64
	for i := range actual {
		diff := actual[i] - predictions[i]
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		sumPct += math.Abs(diff / (actual[i] + mapeEpsilon))
		sumActual += actual[i]
	}

	meanActual := sumActual / n
	ssTotal := 0.0
	for _, v := range actual {
		ssTotal += (v - meanActual) * (v - meanActual)
	}

	r2 := 0.0
	switch {
	case ssTotal > 0:
		r2 = 1 - sumSq/ssTotal
	case sumSq == 0:
		r2 = 1
	}

	return RegressionMetrics{
		R2:   r2,
		MAE:  sumAbs / n,
		RMSE: math.Sqrt(sumSq / n),
		MAPE: math.Min(sumPct/n*100, 100),
	}
}

// RMSE is the root mean squared error of predictions
func RMSE(predictions, actual []float64) float64 {
	return CalculateRegressionMetrics(predictions, actual).RMSE
}

// ClassConfusion buckets actual and predicted WQI into classes and tabulates
// them as reference class -> predicted class -> count.
func ClassConfusion(predictions, actual []float64) evaluation.ConfusionMatrix {
	cm := make(evaluation.ConfusionMatrix)
	for _, label := range classify.Labels() {
		cm[string(label)] = make(map[string]int)
	}
	refs := classify.Strings(actual)
	got := classify.Strings(predictions)
	for i, ref := range refs {
		cm[ref][got[i]]++
	}
	return cm
}

// ClassAccuracy is the share of rows whose predicted class matches the
// class of the actual WQI.
func ClassAccuracy(cm evaluation.ConfusionMatrix) float64 {
	total := 0
	for _, row := range cm {
		for _, n := range row {
			total += n
		}
	}
	if total == 0 {
		return 0
	}
	return evaluation.GetAccuracy(cm)
}
