package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// Schema is the resolution of a table header onto canonical columns. It is
// computed once per table and then applied to every row.
type Schema struct {
	header []string
	// canonical column index, aligned with models.CanonicalColumns
	index []int
	// header each canonical column was resolved from
	source []string
	target int
}

// Resolve maps a header onto the canonical columns. For every canonical name
// the exact canonical header wins, then the first alias present in Aliases
// order. If any canonical name is unresolved a *MissingColumnError is returned.
func Resolve(header []string) (*Schema, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, ok := positions[key]; !ok {
			positions[key] = i
		}
	}

	s := &Schema{
		header: header,
		index:  make([]int, len(models.CanonicalColumns)),
		source: make([]string, len(models.CanonicalColumns)),
		target: -1,
	}
	var missing []string
	for i, col := range models.CanonicalColumns {
		idx, ok := lookup(positions, col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		s.index[i] = idx
		s.source[i] = header[idx]
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Column: missing[0], Missing: missing}
	}

	if idx, ok := positions[models.ColumnWQI]; ok {
		s.target = idx
	}
	return s, nil
}

func lookup(positions map[string]int, canonical string) (int, bool) {
	if idx, ok := positions[canonical]; ok {
		return idx, true
	}
	for _, alias := range aliasesFor(canonical) {
		if idx, ok := positions[alias]; ok {
			return idx, true
		}
	}
	return -1, false
}

// MissingColumns lists the canonical names a header cannot provide
func MissingColumns(header []string) []string {
	_, err := Resolve(header)
	if mce, ok := err.(*MissingColumnError); ok {
		return mce.Missing
	}
	return []string{}
}

// HasTarget reports whether the header carries the WQI column
func (s *Schema) HasTarget() bool {
	return s.target >= 0
}

// Resolved maps each canonical name to the header it was read from
func (s *Schema) Resolved() map[string]string {
	out := make(map[string]string, len(s.source))
	for i, col := range models.CanonicalColumns {
		out[col] = s.source[i]
	}
	return out
}

// Passthrough returns the indices of columns that are neither a resolved
// canonical column nor the target.
func (s *Schema) Passthrough() []int {
	used := make(map[int]bool, len(s.index)+1)
	for _, idx := range s.index {
		used[idx] = true
	}
	used[s.target] = true

	var out []int
	for i := range s.header {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// OutputColumns returns the indices of every column except the target, in
// header order.
func (s *Schema) OutputColumns() []int {
	out := make([]int, 0, len(s.header))
	for i := range s.header {
		if i != s.target {
			out = append(out, i)
		}
	}
	return out
}

// Canonical converts one row into a CanonicalSample. rowIndex is only used
// for error reporting.
func (s *Schema) Canonical(row []string, rowIndex int) (models.CanonicalSample, error) {
	var sample models.CanonicalSample
	for i, col := range models.CanonicalColumns {
		value, err := parseMeasurement(col, cell(row, s.index[i]), rowIndex)
		if err != nil {
			return models.CanonicalSample{}, err
		}
		sample.Set(col, value)
	}
	return sample, nil
}

// Target parses the WQI cell of a row
func (s *Schema) Target(row []string, rowIndex int) (float64, error) {
	raw := cell(row, s.target)
	v, err := parseNumber(raw)
	if err != nil {
		return 0, &InvalidValueError{Column: models.ColumnWQI, Row: rowIndex, Value: raw, Reason: err.Error()}
	}
	return v, nil
}

// Normalize converts a single raw sample into a CanonicalSample. Errors
// report it as row 0.
func Normalize(raw models.RawSample) (models.CanonicalSample, error) {
	header := make([]string, 0, len(raw))
	row := make([]string, 0, len(raw))
	for k, v := range raw {
		header = append(header, k)
		row = append(row, v)
	}
	// map order is random; Resolve keeps the first occurrence of a
	// normalized header, so make that choice stable
	sortPairs(header, row)

	schema, err := Resolve(header)
	if err != nil {
		return models.CanonicalSample{}, err
	}
	return schema.Canonical(row, 0)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if isMissing(s) {
		return 0, errMissingValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errNotNumeric
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

func parseMeasurement(column, raw string, rowIndex int) (float64, error) {
	v, err := parseNumber(raw)
	if err != nil {
		return 0, &InvalidValueError{Column: column, Row: rowIndex, Value: raw, Reason: err.Error()}
	}
	if reason := checkRange(column, v); reason != "" {
		return 0, &InvalidValueError{Column: column, Row: rowIndex, Value: raw, Reason: reason}
	}
	return v, nil
}

// checkRange enforces the physical range of a measurement. Temperature may be
// negative; concentrations and counts may not; pH is bounded by 14.
func checkRange(column string, v float64) string {
	if column == models.ColumnTemp {
		return ""
	}
	if v < 0 {
		return "must not be negative"
	}
	if column == models.ColumnPH && v > 14 {
		return "pH must be between 0 and 14"
	}
	return ""
}
