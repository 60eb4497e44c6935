// Package features derives the model inputs from canonical samples. Training
// and inference share this package so the two paths cannot drift apart.
package features

import (
	"math"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Derived feature names
const (
	PHTempInteraction    = "pH_Temp_interaction"
	TDSConductivityRatio = "TDS_Conductivity_ratio"
	ColiformRatio        = "Coliform_ratio"
	FecalColiformLog     = "Fecal_Coliform_log"
	TotalColiformLog     = "Total_Coliform_log"
	TDSLog               = "TDS_log"
	PHSquared            = "pH_squared"
	TempSquared          = "Temp_squared"
)

// Names is the fixed column order of a feature vector as seen by a model
var Names = append(append([]string{}, models.CanonicalColumns...),
	PHTempInteraction,
	TDSConductivityRatio,
	ColiformRatio,
	FecalColiformLog,
	TotalColiformLog,
	TDSLog,
	PHSquared,
	TempSquared,
)

// Count is the width of a feature vector
var Count = len(Names)

// Engineer computes the derived features of a sample. It is pure.
func Engineer(s models.CanonicalSample) models.FeatureVector {
	return models.FeatureVector{
		CanonicalSample:      s,
		PHTempInteraction:    s.PH * s.Temp,
		TDSConductivityRatio: s.TDS / (s.Conductivity + 1),
		ColiformRatio:        s.FecalColiform / (s.TotalColiform + 1),
		FecalColiformLog:     math.Log1p(s.FecalColiform),
		TotalColiformLog:     math.Log1p(s.TotalColiform),
		TDSLog:               math.Log1p(s.TDS),
		PHSquared:            s.PH * s.PH,
		TempSquared:          s.Temp * s.Temp,
	}
}

// Values flattens a feature vector in Names order
func Values(v models.FeatureVector) []float64 {
	return append(v.CanonicalSample.Values(),
		v.PHTempInteraction,
		v.TDSConductivityRatio,
		v.ColiformRatio,
		v.FecalColiformLog,
		v.TotalColiformLog,
		v.TDSLog,
		v.PHSquared,
		v.TempSquared,
	)
}

// Matrix engineers a batch of samples into row-major feature rows
func Matrix(samples []models.CanonicalSample) [][]float64 {
	rows := make([][]float64, len(samples))
	for i, s := range samples {
		rows[i] = Values(Engineer(s))
	}
	return rows
}

// SameNames reports whether names matches Names exactly, in order
func SameNames(names []string) bool {
	if len(names) != len(Names) {
		return false
	}
	for i := range names {
		if names[i] != Names[i] {
			return false
		}
	}
	return true
}
