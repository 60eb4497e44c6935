package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// MissingColumnError is returned when a required measurement cannot be found
// under its canonical name or any of its aliases.
type MissingColumnError struct {
	// Column is the first canonical name that could not be resolved
	Column string
	// Missing lists every unresolved canonical name, Column included
	Missing []string
}

func (e *MissingColumnError) Error() string {
	if len(e.Missing) > 1 {
		return fmt.Sprintf("missing required column %q (all missing: %s)", e.Column, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("missing required column %q", e.Column)
}

// InvalidValueError is returned when a required cell is empty, not numeric or
// outside the plausible range of the measurement.
type InvalidValueError struct {
	Column string
	// Row is the 0-based index among data rows
	Row int
	// Line is the 1-based CSV line of the row, or 0 when unknown
	Line   int
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid value %q for column %q: %s", e.Line, e.Value, e.Column, e.Reason)
	}
	return fmt.Sprintf("row %d: invalid value %q for column %q: %s", e.Row, e.Value, e.Column, e.Reason)
}

// AtLine records the source line of row on any InvalidValueError in err
func AtLine(err error, t *Table, row int) error {
	var invalid *InvalidValueError
	if errors.As(err, &invalid) {
		invalid.Line = t.Line(row)
	}
	return err
}
