// Package rake computes survey weights by iterative proportional fitting (raking).
//
// Given a respondent table and an ordered list of marginal targets, Solve returns
// one weight per respondent such that every weighted marginal approximates its
// population target. Weights are row-aligned with the table.
package rake

import (
	"sort"
	"strings"
)

// Table provides column-wise categorical access to a respondent table.
// Every column returned by Column must have exactly Len values.
type Table interface {
	Len() int
	Column(name string) ([]string, bool)
}

// Columns is an in-memory Table keyed by column name.
type Columns map[string][]string

var _ Table = Columns{} // Compile-time check

// Len returns the length of the longest column, or zero for an empty table.
// A shorter column referenced by a target is rejected by Solve.
func (c Columns) Len() int {
	n := 0
	for _, values := range c {
		n = max(n, len(values))
	}
	return n
}

// Column returns the values of the named column.
func (c Columns) Column(name string) ([]string, bool) {
	values, ok := c[name]
	return values, ok
}

// isMissing reports whether a cell carries no category value.
func isMissing(value string) bool {
	return strings.TrimSpace(value) == ""
}

// presenceSet returns the distinct non-missing values of a column in sorted order.
func presenceSet(values []string) []string {
	seen := make(map[string]struct{})
	for _, v := range values {
		if isMissing(v) {
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
