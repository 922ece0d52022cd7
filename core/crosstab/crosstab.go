// Package crosstab builds weighted cross tabulations from raked respondent tables.
package crosstab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/surveykit/raking/core/rake"
)

// Normalize selects how cells are expressed.
type Normalize string

// All normalization modes supported.
const (
	NoNormalize      Normalize = "none" // raw weighted counts
	IndexNormalize   Normalize = "index"
	ColumnsNormalize Normalize = "columns"
	AllNormalize     Normalize = "all" // default
)

// ValidNormalizeModes lists all valid normalization modes.
var ValidNormalizeModes = map[Normalize]struct{}{
	NoNormalize:      {},
	IndexNormalize:   {},
	ColumnsNormalize: {},
	AllNormalize:     {},
}

// ErrUnknownColumn is returned when a crosstab references a missing column.
var ErrUnknownColumn = errors.New("unknown column")

// Table is a weighted crosstab. Percent tables hold values in [0, 100].
type Table struct {
	RowVariable    string      `json:"row_variable"`
	ColumnVariable string      `json:"column_variable"`
	Normalize      Normalize   `json:"normalize"`
	Weighted       bool        `json:"weighted"`
	RowLabels      []string    `json:"row_labels"`
	ColumnLabels   []string    `json:"column_labels"`
	Cells          [][]float64 `json:"cells"`
}

// Cell returns the value at the given labels.
func (t *Table) Cell(row, column string) (float64, bool) {
	r := indexOf(t.RowLabels, row)
	c := indexOf(t.ColumnLabels, column)
	if r < 0 || c < 0 {
		return 0, false
	}
	return t.Cells[r][c], true
}

func indexOf(labels []string, label string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Build computes the weighted crosstab of rowVar by colVar. A nil weights
// slice yields unweighted counts. Rows with a missing value on either
// variable are left out.
func Build(table rake.Table, rowVar, colVar string, weights []float64, mode Normalize) (*Table, error) {
	if mode == "" {
		mode = AllNormalize
	}
	if _, ok := ValidNormalizeModes[mode]; !ok {
		return nil, fmt.Errorf("invalid normalize mode '%s'. must be none, index, columns, all", mode)
	}
	rows, ok := table.Column(rowVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, rowVar)
	}
	cols, ok := table.Column(colVar)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, colVar)
	}
	if weights != nil && len(weights) != len(rows) {
		return nil, fmt.Errorf("weights have %d values, table has %d rows", len(weights), len(rows))
	}

	rowLabels := distinct(rows)
	colLabels := distinct(cols)
	rowIdx := positions(rowLabels)
	colIdx := positions(colLabels)

	cells := make([][]float64, len(rowLabels))
	for i := range cells {
		cells[i] = make([]float64, len(colLabels))
	}
	for i := range rows {
		r, rok := rowIdx[strings.TrimSpace(rows[i])]
		c, cok := colIdx[strings.TrimSpace(cols[i])]
		if !rok || !cok {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		cells[r][c] += w
	}

	normalizeCells(cells, mode)
	return &Table{
		RowVariable:    rowVar,
		ColumnVariable: colVar,
		Normalize:      mode,
		Weighted:       weights != nil,
		RowLabels:      rowLabels,
		ColumnLabels:   colLabels,
		Cells:          cells,
	}, nil
}

// distinct returns sorted non-empty trimmed labels.
func distinct(values []string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func positions(labels []string) map[string]int {
	out := make(map[string]int, len(labels))
	for i, l := range labels {
		out[l] = i
	}
	return out
}

// normalizeCells converts raw sums to percentages in place.
// Rows or columns with a zero total stay at zero.
func normalizeCells(cells [][]float64, mode Normalize) {
	switch mode {
	case IndexNormalize:
		for _, row := range cells {
			total := 0.0
			for _, v := range row {
				total += v
			}
			scale(row, total)
		}
	case ColumnsNormalize:
		if len(cells) == 0 {
			return
		}
		for c := range cells[0] {
			total := 0.0
			for r := range cells {
				total += cells[r][c]
			}
			if total == 0 {
				continue
			}
			for r := range cells {
				cells[r][c] = cells[r][c] / total * 100
			}
		}
	case AllNormalize:
		total := 0.0
		for _, row := range cells {
			for _, v := range row {
				total += v
			}
		}
		for _, row := range cells {
			scale(row, total)
		}
	}
}

func scale(row []float64, total float64) {
	if total == 0 {
		return
	}
	for i := range row {
		row[i] = row[i] / total * 100
	}
}
