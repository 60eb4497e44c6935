// Package classify maps water quality index values onto the five ordinal
// drinking-water classes.
package classify

import "github.com/mimir-aip/waterquality/pkg/models"

// Upper bounds (inclusive) of each class. Anything above the last bound is
// unsuitable for drinking.
const (
	ExcellentMax = 25.0
	GoodMax      = 50.0
	PoorMax      = 75.0
	VeryPoorMax  = 100.0
)

var labels = []models.WQIClass{
	models.WQIClassExcellent,
	models.WQIClassGood,
	models.WQIClassPoor,
	models.WQIClassVeryPoor,
	models.WQIClassUnsuitable,
}

// Labels returns the classes from best to worst
func Labels() []models.WQIClass {
	out := make([]models.WQIClass, len(labels))
	copy(out, labels)
	return out
}

// Classify buckets a WQI value. Negative values are not clamped and fall
// into Excellent.
func Classify(wqi float64) models.WQIClass {
	switch {
	case wqi <= ExcellentMax:
		return models.WQIClassExcellent
	case wqi <= GoodMax:
		return models.WQIClassGood
	case wqi <= PoorMax:
		return models.WQIClassPoor
	case wqi <= VeryPoorMax:
		return models.WQIClassVeryPoor
	default:
		return models.WQIClassUnsuitable
	}
}

// Histogram counts values per class. Every class is present in the result.
func Histogram(values []float64) map[models.WQIClass]int {
	counts := make(map[models.WQIClass]int, len(labels))
	for _, l := range labels {
		counts[l] = 0
	}
	for _, v := range values {
		counts[Classify(v)]++
	}
	return counts
}

// Strings classifies a slice of values, returning the labels as strings
func Strings(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(Classify(v))
	}
	return out
}
