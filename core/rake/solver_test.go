package rake

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weightedShare returns the weighted proportion of category in column.
func weightedShare(t *testing.T, table Table, weights []float64, column, category string) float64 {
	t.Helper()
	values, ok := table.Column(column)
	require.True(t, ok)
	var hit, total float64
	for i, v := range values {
		if isMissing(v) {
			continue
		}
		total += weights[i]
		if v == category {
			hit += weights[i]
		}
	}
	require.Greater(t, total, 0.0)
	return hit / total
}

// syntheticSample builds a 100-row table with uneven gender and region shares.
func syntheticSample() Columns {
	gender := make([]string, 100)
	region := make([]string, 100)
	for i := range 100 {
		gender[i] = "F"
		if i < 60 {
			gender[i] = "M"
		}
		region[i] = "South"
		if i%4 == 0 {
			region[i] = "North"
		}
	}
	return Columns{"gender": gender, "region": region}
}

func TestSolve_ScenarioSingleVariable(t *testing.T) {
	table := Columns{"gender": {"M", "M", "F", "F"}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{
		{Category: "M", Proportion: 0.3},
		{Category: "F", Proportion: 0.7},
	}}}

	res, err := Solve(table, targets, Options{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, DefaultMaxIter)
	assert.Len(t, res.Weights, 4)
	assert.InDelta(t, 0.7, weightedShare(t, table, res.Weights, "gender", "F"), 0.001)
	assert.InDelta(t, 0.6, res.Weights[0], 1e-9)
	assert.InDelta(t, 1.4, res.Weights[3], 1e-9)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.Deltas, res.Iterations)
}

func TestSolve_MissingCategory(t *testing.T) {
	table := Columns{"gender": {"M", "M", "F", "F", "F"}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{
		{Category: "M", Proportion: 0.3},
		{Category: "F", Proportion: 0.6},
		{Category: "Other", Proportion: 0.1},
	}}}

	for _, policy := range []MissingPolicy{RedistributeMissing, KeepDeclared} {
		t.Run(string(policy), func(t *testing.T) {
			res, err := Solve(table, targets, Options{MissingPolicy: policy})
			require.NoError(t, err)
			require.True(t, res.HasWarning(MissingCategoryWarning))

			// M and F keep the declared 0.3 : 0.6 ratio either way.
			m := weightedShare(t, table, res.Weights, "gender", "M")
			f := weightedShare(t, table, res.Weights, "gender", "F")
			assert.InDelta(t, 0.5, m/f, 1e-6)
			for _, w := range res.Weights {
				assert.Greater(t, w, 0.0)
			}
		})
	}

	t.Run("redistribute absorbs full share", func(t *testing.T) {
		res, err := Solve(table, targets, Options{})
		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.InDelta(t, 1.0/3.0, weightedShare(t, table, res.Weights, "gender", "M"), 0.001)

		count := 0
		for _, w := range res.Warnings {
			if w.Kind == MissingCategoryWarning {
				count++
				assert.Equal(t, "Other", w.Category)
			}
		}
		assert.Equal(t, 1, count, "missing category warning must be raised once")
	})
}

func TestSolve_TwoVariables(t *testing.T) {
	table := syntheticSample()
	targets := []Target{
		{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.5}, {Category: "F", Proportion: 0.5}}},
		{Variable: "region", Categories: []CategoryTarget{{Category: "North", Proportion: 0.2}, {Category: "South", Proportion: 0.8}}},
	}

	res, err := Solve(table, targets, Options{})
	require.NoError(t, err)
	require.True(t, res.Converged)

	assert.InDelta(t, 0.5, weightedShare(t, table, res.Weights, "gender", "M"), 0.001)
	assert.InDelta(t, 0.5, weightedShare(t, table, res.Weights, "gender", "F"), 0.001)
	assert.InDelta(t, 0.2, weightedShare(t, table, res.Weights, "region", "North"), 0.001)
	assert.InDelta(t, 0.8, weightedShare(t, table, res.Weights, "region", "South"), 0.001)
	for _, w := range res.Weights {
		assert.Greater(t, w, 0.0)
	}
	assert.InDelta(t, 100.0, res.Summary.Sum, 0.01)
}

func TestSolve_OrderSensitivity(t *testing.T) {
	table := syntheticSample()
	gender := Target{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.45}, {Category: "F", Proportion: 0.55}}}
	region := Target{Variable: "region", Categories: []CategoryTarget{{Category: "North", Proportion: 0.3}, {Category: "South", Proportion: 0.7}}}

	for name, targets := range map[string][]Target{
		"gender first": {gender, region},
		"region first": {region, gender},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Solve(table, targets, Options{})
			require.NoError(t, err)
			require.True(t, res.Converged)
			assert.InDelta(t, 0.45, weightedShare(t, table, res.Weights, "gender", "M"), 0.001)
			assert.InDelta(t, 0.3, weightedShare(t, table, res.Weights, "region", "North"), 0.001)
		})
	}
}

func TestSolve_EmptyTable(t *testing.T) {
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 1}}}}

	res, err := Solve(Columns{"gender": {}}, targets, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Weights)
	assert.NotNil(t, res.Weights)
	assert.True(t, res.Converged)
	assert.Equal(t, 0, res.Iterations)
	assert.Empty(t, res.Warnings)
}

func TestSolve_EmptyTableStillValidatesTargets(t *testing.T) {
	tests := []struct {
		name    string
		table   Columns
		targets []Target
	}{
		{"unknown column", Columns{"gender": {}}, []Target{{Variable: "region", Categories: []CategoryTarget{{Category: "N", Proportion: 1}}}}},
		{"negative proportion", Columns{"region": {}}, []Target{{Variable: "region", Categories: []CategoryTarget{{Category: "N", Proportion: -3}}}}},
		{"no columns", Columns{}, []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 1}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Solve(tt.table, tt.targets, Options{})
			assert.ErrorIs(t, err, ErrInvalidTargetSpec)
		})
	}
}

func TestColumns_LenUsesLongestColumn(t *testing.T) {
	table := Columns{"a": {"x"}, "b": {"x", "y", "z"}, "c": {"x", "y"}}
	for range 20 {
		assert.Equal(t, 3, table.Len())
	}

	targets := []Target{{Variable: "a", Categories: []CategoryTarget{{Category: "x", Proportion: 1}}}}
	for range 20 {
		_, err := Solve(table, targets, Options{})
		assert.ErrorIs(t, err, ErrInvalidTargetSpec)
	}
}

func TestSolve_InvalidTargetSpec(t *testing.T) {
	table := Columns{"gender": {"M", "F"}}

	tests := []struct {
		name    string
		targets []Target
	}{
		{"unknown column", []Target{{Variable: "age", Categories: []CategoryTarget{{Category: "18-24", Proportion: 1}}}}},
		{"empty variable", []Target{{Variable: " ", Categories: []CategoryTarget{{Category: "M", Proportion: 1}}}}},
		{"no categories", []Target{{Variable: "gender"}}},
		{"negative proportion", []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: -0.5}, {Category: "F", Proportion: 1.5}}}}},
		{"zero sum", []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0}}}}},
		{"duplicate category", []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.5}, {Category: "M", Proportion: 0.5}}}}},
		{"duplicate variable", []Target{
			{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 1}}},
			{Variable: "gender", Categories: []CategoryTarget{{Category: "F", Proportion: 1}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Solve(table, tt.targets, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTargetSpec)
			assert.Nil(t, res)
		})
	}
}

func TestSolve_InvalidOptions(t *testing.T) {
	table := Columns{"gender": {"M", "F"}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.5}, {Category: "F", Proportion: 0.5}}}}

	for _, opts := range []Options{
		{MaxIter: -1},
		{Tolerance: -0.1},
		{MissingPolicy: "drop"},
	} {
		t.Run(fmt.Sprintf("%+v", opts), func(t *testing.T) {
			_, err := Solve(table, targets, opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestSolve_NotConverged(t *testing.T) {
	table := syntheticSample()
	targets := []Target{
		{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.5}, {Category: "F", Proportion: 0.5}}},
		{Variable: "region", Categories: []CategoryTarget{{Category: "North", Proportion: 0.2}, {Category: "South", Proportion: 0.8}}},
	}

	res, err := Solve(table, targets, Options{MaxIter: 1})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Weights, 100)
	assert.True(t, res.HasWarning(NotConvergedWarning))
}

func TestSolve_UnmatchedAndMissingCells(t *testing.T) {
	table := Columns{"gender": {"M", "F", "", "X", "M", "F"}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{
		{Category: "M", Proportion: 0.4},
		{Category: "F", Proportion: 0.6},
	}}}

	res, err := Solve(table, targets, Options{MaxIter: 5})
	require.NoError(t, err)
	assert.True(t, res.HasWarning(UnmatchedCategoryWarning))
	assert.Equal(t, 1.0, res.Weights[2], "missing cells are never rescaled")
	assert.Equal(t, 1.0, res.Weights[3], "unmatched categories keep factor 1")
	assert.False(t, res.Converged, "an unmatched category keeps a fixed share of the total")
	assert.True(t, res.HasWarning(NotConvergedWarning))

	long, err := Solve(table, targets, Options{MaxIter: 200})
	require.NoError(t, err)
	assert.False(t, long.Converged)
	assert.InDelta(t, 1.0, long.Deltas[len(long.Deltas)-1], 1e-6)
}

func TestSolve_ZeroProportionDiagnostic(t *testing.T) {
	table := Columns{
		"gender": {"M", "M", "F", "F"},
		"region": {"North", "South", "North", "South"},
	}
	targets := []Target{
		{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0}, {Category: "F", Proportion: 1}}},
		{Variable: "region", Categories: []CategoryTarget{{Category: "North", Proportion: 0.5}, {Category: "South", Proportion: 0.5}}},
	}

	res, err := Solve(table, targets, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Weights[0], 1e-12)
	assert.InDelta(t, 1.0, weightedShare(t, table, res.Weights, "gender", "F"), 1e-9)
}

func TestSolve_ZeroShareWithPositiveTarget(t *testing.T) {
	table := Columns{
		"gender": {"M", "M", "F", "F"},
		"age":    {"young", "young", "old", "old"},
	}
	targets := []Target{
		{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0}, {Category: "F", Proportion: 1}}},
		{Variable: "age", Categories: []CategoryTarget{{Category: "young", Proportion: 0.5}, {Category: "old", Proportion: 0.5}}},
	}

	res, err := Solve(table, targets, Options{MaxIter: 3})
	require.NoError(t, err)
	assert.True(t, res.HasWarning(ZeroProportionWarning))

	count := 0
	for _, w := range res.Warnings {
		if w.Kind == ZeroProportionWarning {
			count++
		}
	}
	assert.Equal(t, 1, count, "diagnostics are deduplicated across iterations")
}

func TestSolve_WorkersMatchSerial(t *testing.T) {
	n := 3*chunkSize + 17
	gender := make([]string, n)
	region := make([]string, n)
	for i := range n {
		gender[i] = []string{"M", "F", "F"}[i%3]
		region[i] = []string{"North", "South", "East", "West", "South"}[i%5]
	}
	table := Columns{"gender": gender, "region": region}
	targets := []Target{
		{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 0.48}, {Category: "F", Proportion: 0.52}}},
		{Variable: "region", Categories: []CategoryTarget{
			{Category: "North", Proportion: 0.25}, {Category: "South", Proportion: 0.25},
			{Category: "East", Proportion: 0.25}, {Category: "West", Proportion: 0.25},
		}},
	}

	serial, err := Solve(table, targets, Options{Workers: 1})
	require.NoError(t, err)
	parallel, err := Solve(table, targets, Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, serial.Iterations, parallel.Iterations)
	assert.Equal(t, serial.Weights, parallel.Weights)
}

func TestSolve_NormalizeLabels(t *testing.T) {
	table := Columns{"gender": {" male", "MALE", "Female", "female "}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{
		{Category: "Male", Proportion: 0.4},
		{Category: "FEMALE", Proportion: 0.6},
	}}}

	res, err := Solve(table, targets, Options{NormalizeLabels: true})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.False(t, res.HasWarning(MissingCategoryWarning))
	assert.InDelta(t, 0.8, res.Weights[0], 1e-9)
	assert.InDelta(t, 1.2, res.Weights[2], 1e-9)

	res, err = Solve(table, targets, Options{})
	require.NoError(t, err)
	assert.True(t, res.HasWarning(MissingCategoryWarning), "labels are compared as-is by default")
}

func TestSolve_Marginals(t *testing.T) {
	table := Columns{"gender": {"M", "M", "F", "F"}}
	targets := []Target{{Variable: "gender", Categories: []CategoryTarget{
		{Category: "M", Proportion: 0.3},
		{Category: "F", Proportion: 0.7},
	}}}

	res, err := Solve(table, targets, Options{})
	require.NoError(t, err)
	require.Len(t, res.Marginals, 2)

	m := res.Marginals[0]
	assert.Equal(t, "gender", m.Variable)
	assert.Equal(t, "M", m.Category)
	assert.Equal(t, 2, m.Count)
	assert.InDelta(t, 0.5, m.Unweighted, 1e-12)
	assert.InDelta(t, 0.3, m.Weighted, 1e-9)
	assert.Less(t, m.Gap(), 1e-9)
}

func TestCheck(t *testing.T) {
	table := Columns{
		"gender": {"M", "M", "M", "F", "X"},
	}
	targets := []Target{{
		Variable: "gender",
		Categories: []CategoryTarget{
			{Category: "M", Proportion: 0.4},
			{Category: "F", Proportion: 0.4},
			{Category: "O", Proportion: 0.2},
		},
	}}

	res, err := Check(table, targets, Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Respondents)
	assert.True(t, containsKind(res.Warnings, MissingCategoryWarning))
	assert.True(t, containsKind(res.Warnings, UnmatchedCategoryWarning))
	require.Len(t, res.Marginals, 4)

	m := res.Marginals[0]
	assert.Equal(t, "M", m.Category)
	assert.InDelta(t, 0.5, m.Target, 1e-12) // redistributed over present categories
	assert.InDelta(t, 0.6, m.Unweighted, 1e-12)
	assert.InDelta(t, m.Unweighted, m.Weighted, 1e-12)
	assert.Zero(t, res.Marginals[2].Target)
}

func TestCheck_UnknownColumn(t *testing.T) {
	_, err := Check(Columns{"age": {"1"}}, []Target{{Variable: "gender", Categories: []CategoryTarget{{Category: "M", Proportion: 1}}}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidTargetSpec)
}

func containsKind(warnings []Warning, kind WarningKind) bool {
	for _, w := range warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
