// Package dataset loads respondent tables from CSV and Excel files.
package dataset

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrDuplicateColumn is returned when a header names the same column twice.
var ErrDuplicateColumn = errors.New("duplicate column")

// Dataset is a rectangular table of string cells with a header row.
// Every record has exactly len(Header) cells.
type Dataset struct {
	Name    string
	Header  []string
	Records [][]string

	index   map[string]int
	columns map[string][]string
}

// New builds a dataset from a header and records, padding short records
// with empty cells. Records longer than the header are rejected. A record
// with only empty cells is kept so rows stay aligned with the source.
func New(name string, header []string, records [][]string) (*Dataset, error) {
	d := &Dataset{
		Name:    name,
		Header:  make([]string, len(header)),
		Records: make([][]string, 0, len(records)),
		index:   make(map[string]int, len(header)),
		columns: make(map[string][]string),
	}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		if _, dup := d.index[h]; dup {
			return nil, fmt.Errorf("%w %q in %s", ErrDuplicateColumn, h, name)
		}
		d.index[h] = i
		d.Header[i] = h
	}

	for i, rec := range records {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%s: row %d has %d fields, header has %d", name, i+2, len(rec), len(header))
		}
		row := make([]string, len(header))
		copy(row, rec)
		d.Records = append(d.Records, row)
	}
	return d, nil
}

// Len returns the number of respondents.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Column returns the named column. The slice is shared and must not be modified.
func (d *Dataset) Column(name string) ([]string, bool) {
	idx, ok := d.index[name]
	if !ok {
		return nil, false
	}
	if col, ok := d.columns[name]; ok {
		return col, true
	}
	col := make([]string, len(d.Records))
	for i, rec := range d.Records {
		col[i] = rec[idx]
	}
	d.columns[name] = col
	return col, true
}

// HasColumn reports whether the header contains name.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Floats parses the named column as numbers. A blank or malformed cell is an error.
func (d *Dataset) Floats(name string) ([]float64, error) {
	col, ok := d.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found in %s", name, d.Name)
	}
	out := make([]float64, len(col))
	for i, v := range col {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, i+2, err)
		}
		out[i] = f
	}
	return out, nil
}

// Distinct returns the sorted non-blank values of a column.
func (d *Dataset) Distinct(name string) []string {
	col, ok := d.Column(name)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	for _, v := range col {
		if v = strings.TrimSpace(v); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
