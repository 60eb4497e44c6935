package classify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		wqi  float64
		want models.WQIClass
	}{
		{-3, models.WQIClassExcellent},
		{0, models.WQIClassExcellent},
		{25, models.WQIClassExcellent},
		{25.0001, models.WQIClassGood},
		{50, models.WQIClassGood},
		{50.5, models.WQIClassPoor},
		{75, models.WQIClassPoor},
		{75.0001, models.WQIClassVeryPoor},
		{100, models.WQIClassVeryPoor},
		{100.0001, models.WQIClassUnsuitable},
		{1e6, models.WQIClassUnsuitable},
		{math.Inf(1), models.WQIClassUnsuitable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.wqi), "wqi=%v", tt.wqi)
	}
}

func TestClassifyMonotone(t *testing.T) {
	rank := map[models.WQIClass]int{}
	for i, l := range Labels() {
		rank[l] = i
	}
	prev := Classify(-10)
	for v := -10.0; v <= 150; v += 0.25 {
		cur := Classify(v)
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "v=%v", v)
		prev = cur
	}
}

func TestHistogram(t *testing.T) {
	h := Histogram([]float64{10, 20, 30, 60, 80, 120, 130})
	assert.Len(t, h, 5)
	assert.Equal(t, 2, h[models.WQIClassExcellent])
	assert.Equal(t, 1, h[models.WQIClassGood])
	assert.Equal(t, 1, h[models.WQIClassPoor])
	assert.Equal(t, 1, h[models.WQIClassVeryPoor])
	assert.Equal(t, 2, h[models.WQIClassUnsuitable])

	empty := Histogram(nil)
	assert.Len(t, empty, 5)
	for _, n := range empty {
		assert.Zero(t, n)
	}
}

func TestLabelsIsCopy(t *testing.T) {
	l := Labels()
	l[0] = "changed"
	assert.Equal(t, models.WQIClassExcellent, Labels()[0])
	assert.Equal(t, []string{"Excellent", "Unsuitable for Drinking"}, Strings([]float64{1, 101}))
}
