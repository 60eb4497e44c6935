package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func sample() models.CanonicalSample {
	return models.CanonicalSample{
		Temp:          25,
		PH:            7.2,
		Conductivity:  450,
		Nitrate:       1.5,
		FecalColiform: 12,
		TotalColiform: 40,
		TDS:           300,
		Fluoride:      0.6,
	}
}

func TestEngineer(t *testing.T) {
	s := sample()
	v := Engineer(s)

	assert.Equal(t, s, v.CanonicalSample)
	assert.InDelta(t, 7.2*25, v.PHTempInteraction, 1e-12)
	assert.InDelta(t, 300.0/451.0, v.TDSConductivityRatio, 1e-12)
	assert.InDelta(t, 12.0/41.0, v.ColiformRatio, 1e-12)
	assert.InDelta(t, math.Log(13), v.FecalColiformLog, 1e-12)
	assert.InDelta(t, math.Log(41), v.TotalColiformLog, 1e-12)
	assert.InDelta(t, math.Log(301), v.TDSLog, 1e-12)
	assert.InDelta(t, 7.2*7.2, v.PHSquared, 1e-12)
	assert.InDelta(t, 625.0, v.TempSquared, 1e-12)
}

func TestEngineerZeroDenominators(t *testing.T) {
	v := Engineer(models.CanonicalSample{PH: 7})
	assert.Zero(t, v.TDSConductivityRatio)
	assert.Zero(t, v.ColiformRatio)
	assert.Zero(t, v.TDSLog)
	for _, x := range Values(v) {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0))
	}
}

func TestEngineerDeterministic(t *testing.T) {
	a := Values(Engineer(sample()))
	b := Values(Engineer(sample()))
	require.Len(t, a, Count)
	for i := range a {
		assert.Equal(t, math.Float64bits(a[i]), math.Float64bits(b[i]), Names[i])
	}
}

func TestNamesOrder(t *testing.T) {
	assert.Equal(t, 16, Count)
	assert.Equal(t, models.CanonicalColumns, Names[:8])
	assert.Equal(t, PHTempInteraction, Names[8])
	assert.Equal(t, TempSquared, Names[15])

	assert.True(t, SameNames(append([]string{}, Names...)))
	swapped := append([]string{}, Names...)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.False(t, SameNames(swapped))
	assert.False(t, SameNames(Names[:15]))
}

func TestMatrix(t *testing.T) {
	m := Matrix([]models.CanonicalSample{sample(), {}})
	require.Len(t, m, 2)
	assert.Len(t, m[0], Count)
	assert.Equal(t, 25.0, m[0][0])
}
