// Package dataset reads water-quality CSVs and resolves their heterogeneous
// headers onto the canonical measurement names.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyDataset is returned when a CSV has no header row
var ErrEmptyDataset = errors.New("dataset is empty")

// Table is an in-memory CSV: a header row plus data rows. Short rows are
// padded so every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
	// Lines holds the 1-based source line each row starts on. Blank lines
	// are skipped, so it can differ from the row index plus two.
	Lines []int
}

// ReadCSV parses a CSV stream into a Table
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &Table{Header: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(t.Rows), err)
		}
		if isBlank(record) {
			continue
		}
		if len(record) < len(header) {
			padded := make([]string, len(header))
			copy(padded, record)
			record = padded
		} else if len(record) > len(header) {
			record = record[:len(header)]
		}
		line, _ := reader.FieldPos(0)
		t.Rows = append(t.Rows, record)
		t.Lines = append(t.Lines, line)
	}

	return t, nil
}

// ReadFile opens and parses a CSV file
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// WriteCSV writes a header and rows as CSV
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// Line returns the source line of row i. Tables built in memory have no
// line information and report the row as if it followed the header.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Column returns the index of the first column whose normalized header equals
// name, or -1.
func (t *Table) Column(name string) int {
	want := NormalizeHeader(name)
	for i, h := range t.Header {
		if NormalizeHeader(h) == want {
			return i
		}
	}
	return -1
}

// AllowedFile reports whether an uploaded file name carries a CSV extension
func AllowedFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
