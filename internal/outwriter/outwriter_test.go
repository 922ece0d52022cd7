package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	pq "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
	"github.com/surveykit/raking/internal/parquet"
	"github.com/surveykit/raking/schema"
)

func sampleResult() *rake.Result {
	weights := []float64{0.8333, 0.8333, 1.25, 1.25}
	return &rake.Result{
		Weights:    weights,
		Converged:  true,
		Iterations: 2,
		Deltas:     []float64{0.8333, 0},
		Marginals: []rake.Marginal{
			{Variable: "gender", Category: "M", Target: 0.5, Unweighted: 0.5, Weighted: 0.5, Count: 2},
			{Variable: "gender", Category: "F", Target: 0.5, Unweighted: 0.5, Weighted: 0.45, Count: 2},
		},
		Summary: rake.Summarize(weights),
	}
}

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New("survey.csv", []string{"id", "gender"}, [][]string{
		{"1", "M"}, {"2", "M"}, {"3", "F"}, {"4", "F"},
	})
	require.NoError(t, err)
	return ds
}

func testConfig() *contract.Config {
	return &contract.Config{
		Precision:    4,
		Width:        120,
		WeightColumn: schema.DefaultWeightColumn,
		Solver:       rake.DefaultOptions(),
		CacheBackend: schema.NoneBackend,
	}
}

func TestWriteRakeTable(t *testing.T) {
	cfg := testConfig()
	var buf bytes.Buffer
	err := writeRakeTable(&buf, sampleResult(), cfg, createFormatter(cfg.Precision), 12*time.Millisecond)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "VARIABLE")
	assert.Contains(t, out, "gender")
	assert.Contains(t, out, "On target")
	assert.Contains(t, out, "Off")
	assert.Contains(t, out, "Converged after 2 iterations")
	assert.Contains(t, out, "Effective sample size")
	assert.Contains(t, out, "Raked 4 respondents")
}

func TestWriteWeightedCSV(t *testing.T) {
	var buf bytes.Buffer
	ds := sampleDataset(t)
	err := writeWeightedCSV(&buf, ds, sampleResult().Weights, "weight")
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"id", "gender", "weight"}, records[0])
	assert.Equal(t, []string{"1", "M", "0.8333"}, records[1])
	assert.Equal(t, []string{"4", "F", "1.25"}, records[4])

	// Input rows are not modified
	assert.Len(t, ds.Records[0], 2)
}

func TestWriteWeightedCSV_OverwritesExistingColumn(t *testing.T) {
	ds, err := dataset.New("in.csv", []string{"weight", "gender"}, [][]string{{"9", "M"}, {"9", "F"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeWeightedCSV(&buf, ds, []float64{0.5, 1.5}, "weight"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"weight", "gender"}, records[0])
	assert.Equal(t, []string{"0.5", "M"}, records[1])
	assert.Equal(t, []string{"1.5", "F"}, records[2])
}

func TestWriteWeightedCSV_KeepsFullPrecision(t *testing.T) {
	ds, err := dataset.New("in.csv", []string{"gender"}, [][]string{{"M"}, {"F"}, {"F"}})
	require.NoError(t, err)
	weights := []float64{1.0 / 3, 2.0 / 3, 1e-7}

	var buf bytes.Buffer
	require.NoError(t, writeWeightedCSV(&buf, ds, weights, "weight"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	for i, w := range weights {
		got, err := strconv.ParseFloat(records[i+1][1], 64)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestWriteWeightedCSV_LengthMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := writeWeightedCSV(&buf, sampleDataset(t), []float64{1}, "weight")
	assert.Error(t, err)
}

func TestWriteRakeJSON(t *testing.T) {
	cfg := testConfig()
	cfg.InputPath = "survey.csv"

	var buf bytes.Buffer
	require.NoError(t, writeRakeJSON(&buf, sampleResult(), cfg, time.Second))

	var result map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "survey.csv", result["input"])
	assert.Equal(t, true, result["converged"])
	assert.Equal(t, "Converged", result["status"])
	assert.Equal(t, float64(1000), result["duration_ms"])
	assert.Len(t, result["weights"], 4)
	assert.Empty(t, result["warnings"])

	marginals := result["marginals"].([]any)
	require.Len(t, marginals, 2)
	second := marginals[1].(map[string]any)
	assert.Equal(t, "F", second["category"])
	assert.Equal(t, "Off", second["status"])
	assert.InDelta(t, 0.05, second["gap"], 1e-9)
}

func TestWriteRakeResult_ParquetFile(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.ParquetOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "weights.parquet")

	require.NoError(t, WriteRakeResult(nil, sampleResult(), cfg, time.Second))

	rows, err := pq.ReadFile[parquet.Weight](cfg.OutputFile)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, int64(3), rows[2].Row)
	assert.Equal(t, 1.25, rows[2].Weight)
}

func TestWriteRakeResult_CSVFile(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.CSVOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "weighted.csv")

	require.NoError(t, WriteRakeResult(sampleDataset(t), sampleResult(), cfg, time.Second))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,gender,weight\n"))

	assert.Error(t, WriteRakeResult(nil, sampleResult(), cfg, time.Second))
}

func sampleCrosstab() *crosstab.Table {
	return &crosstab.Table{
		RowVariable:    "q1",
		ColumnVariable: "gender",
		Normalize:      crosstab.IndexNormalize,
		Weighted:       true,
		RowLabels:      []string{"No", "Yes"},
		ColumnLabels:   []string{"F", "M"},
		Cells:          [][]float64{{25, 75}, {60, 40}},
	}
}

func TestWriteCrosstabCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCrosstabCSV(&buf, sampleCrosstab(), 1))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"q1", "F", "M"},
		{"No", "25.0", "75.0"},
		{"Yes", "60.0", "40.0"},
	}, records)
}

func TestWriteCrosstabTable(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()
	require.NoError(t, writeCrosstabTable(&buf, sampleCrosstab(), cfg, createFormatter(1)))

	out := buf.String()
	assert.Contains(t, out, "60.0")
	assert.Contains(t, out, "q1 by gender (weighted, row percent)")
}

func TestWriteCrosstabResult_Parquet(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.ParquetOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "x.parquet")
	assert.ErrorIs(t, WriteCrosstabResult(sampleCrosstab(), cfg), ErrUnsupportedOutput)
}

func TestWriteCrosstabResult_JSONFile(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.JSONOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "tab.json")
	require.NoError(t, WriteCrosstabResult(sampleCrosstab(), cfg))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var tab crosstab.Table
	require.NoError(t, json.Unmarshal(data, &tab))
	assert.Equal(t, sampleCrosstab(), &tab)
}

func TestWriteCheckCSV(t *testing.T) {
	check := &rake.CheckResult{
		Respondents: 4,
		Marginals: []rake.Marginal{
			{Variable: "gender", Category: "M", Target: 0.4, Unweighted: 0.5, Weighted: 0.5, Count: 2},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, writeCheckCSV(&buf, check, createFormatter(2)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"variable", "category", "target", "sample", "gap", "count"}, records[0])
	assert.Equal(t, []string{"gender", "M", "0.40", "0.50", "0.10", "2"}, records[1])
}

func TestGetMaxTableLabelWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{80, 12},
		{120, 25},
		{300, 40},
	}
	for _, tt := range tests {
		cfg := &contract.Config{Width: tt.width}
		assert.Equal(t, tt.want, GetMaxTableLabelWidth(cfg), "width %d", tt.width)
	}
}
