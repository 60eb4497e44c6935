package dataset

import (
	"errors"
	"sort"
	"strings"
)

var (
	errMissingValue = errors.New("missing value")
	errNotNumeric   = errors.New("not a number")
	errNotFinite    = errors.New("not a finite number")
)

// Markers read as missing in addition to the empty cell
var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
}

func isMissing(s string) bool {
	return missingMarkers[strings.ToLower(strings.TrimSpace(s))]
}

// sortPairs sorts keys ascending and applies the same permutation to values
func sortPairs(keys, values []string) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	k := make([]string, len(keys))
	v := make([]string, len(values))
	for i, j := range idx {
		k[i], v[i] = keys[j], values[j]
	}
	copy(keys, k)
	copy(values, v)
}
