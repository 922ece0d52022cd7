package crosstab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveykit/raking/core/rake"
)

func sampleTable() rake.Columns {
	return rake.Columns{
		"q1":     {"Yes", "No", "Yes", "Yes", "", "No"},
		"gender": {"M", "M", "F", "F", "F", ""},
	}
}

func TestBuild_Unweighted(t *testing.T) {
	tab, err := Build(sampleTable(), "q1", "gender", nil, NoNormalize)
	require.NoError(t, err)

	assert.False(t, tab.Weighted)
	assert.Equal(t, []string{"No", "Yes"}, tab.RowLabels)
	assert.Equal(t, []string{"F", "M"}, tab.ColumnLabels)
	assert.Equal(t, [][]float64{{0, 1}, {2, 1}}, tab.Cells)
}

func TestBuild_Normalize(t *testing.T) {
	weights := []float64{2, 1, 1, 1, 5, 5}

	tests := []struct {
		name string
		mode Normalize
		row  string
		col  string
		want float64
	}{
		{"all", AllNormalize, "Yes", "M", 40},
		{"all default", "", "No", "M", 20},
		{"index", IndexNormalize, "Yes", "F", 50},
		{"index single", IndexNormalize, "No", "M", 100},
		{"columns", ColumnsNormalize, "Yes", "M", 200.0 / 3},
		{"none", NoNormalize, "Yes", "M", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := Build(sampleTable(), "q1", "gender", weights, tt.mode)
			require.NoError(t, err)
			got, ok := tab.Cell(tt.row, tt.col)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBuild_PercentagesSumTo100(t *testing.T) {
	weights := []float64{0.7, 1.3, 0.9, 1.1, 1, 1}
	tab, err := Build(sampleTable(), "q1", "gender", weights, AllNormalize)
	require.NoError(t, err)

	total := 0.0
	for _, row := range tab.Cells {
		for _, v := range row {
			total += v
		}
	}
	assert.InDelta(t, 100, total, 1e-9)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(sampleTable(), "q9", "gender", nil, AllNormalize)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = Build(sampleTable(), "q1", "age", nil, AllNormalize)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = Build(sampleTable(), "q1", "gender", []float64{1}, AllNormalize)
	assert.Error(t, err)

	_, err = Build(sampleTable(), "q1", "gender", nil, Normalize("rows"))
	assert.Error(t, err)
}

func TestCell_Unknown(t *testing.T) {
	tab, err := Build(sampleTable(), "q1", "gender", nil, NoNormalize)
	require.NoError(t, err)
	_, ok := tab.Cell("Maybe", "M")
	assert.False(t, ok)
}
