package dataset

import (
	"sort"
	"strconv"
)

// ImputeMedian fills missing cells of the canonical and target columns with
// the column median of the parseable values. Columns without a single
// parseable value are left untouched. It returns the number of filled cells.
func (s *Schema) ImputeMedian(t *Table) int {
	columns := append([]int{}, s.index...)
	if s.target >= 0 {
		columns = append(columns, s.target)
	}

	filled := 0
	for _, col := range columns {
		var values []float64
		var holes []int
		for i, row := range t.Rows {
			raw := cell(row, col)
			if isMissing(raw) {
				holes = append(holes, i)
				continue
			}
			if v, err := parseNumber(raw); err == nil {
				values = append(values, v)
			}
		}
		if len(holes) == 0 || len(values) == 0 {
			continue
		}

		fill := strconv.FormatFloat(Median(values), 'g', -1, 64)
		for _, i := range holes {
			t.Rows[i][col] = fill
			filled++
		}
	}
	return filled
}

// Median returns the middle value of xs, averaging the two middle values for
// an even count. xs is not modified.
func Median(xs []float64) float64 {
	return Quantile(xs, 0.5)
}

// Quantile returns the p-quantile of xs using linear interpolation between
// closest ranks (position p*(n-1)). xs is not modified.
func Quantile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)

	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
