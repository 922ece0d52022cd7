package parquet

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveykit/raking/schema"
)

func sampleRuns() []RakingRun {
	now := time.Now()
	start := now.Add(-2 * time.Hour)
	end := now.Add(-1*time.Hour - 30*time.Minute)
	duration := int32(end.Sub(start).Milliseconds())
	params := `{"max_iter":100,"tolerance":0.001}`

	return []RakingRun{
		{
			RunID:         "run-1",
			StartTime:     start,
			EndTime:       &end,
			RunDurationMs: &duration,
			InputPath:     "survey.csv",
			Respondents:   400,
			Iterations:    7,
			Converged:     true,
			EffectiveN:    361.2,
			ConfigParams:  &params,
		},
		{
			RunID:       "run-2",
			StartTime:   now.Add(-10 * time.Minute),
			InputPath:   "wave2.xlsx",
			Respondents: 0,
		},
	}
}

func TestRakingRunStructTags(t *testing.T) {
	s := parquet.SchemaOf(new(RakingRun))
	require.NotNil(t, s)

	for _, colName := range []string{
		"run_id", "start_time", "end_time", "run_duration_ms", "input_path",
		"respondents", "iterations", "converged", "warnings", "effective_n", "config_params",
	} {
		_, ok := s.Lookup(colName)
		assert.True(t, ok, "Column %s should exist in schema", colName)
	}
}

func TestMarginalStructTags(t *testing.T) {
	s := parquet.SchemaOf(new(Marginal))
	for _, colName := range []string{"run_id", "variable", "category", "target", "unweighted", "weighted", "count"} {
		_, ok := s.Lookup(colName)
		assert.True(t, ok, "Column %s should exist in schema", colName)
	}
}

func TestWriteRunsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "runs.parquet")
	data := sampleRuns()

	require.NoError(t, WriteRunsParquet(data, outputPath))

	file, err := os.Open(outputPath)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[RakingRun](file)
	defer func() { _ = reader.Close() }()

	readData := make([]RakingRun, reader.NumRows())
	n, err := reader.Read(readData)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	require.Equal(t, len(data), n)

	assert.Equal(t, "run-1", readData[0].RunID)
	assert.True(t, readData[0].Converged)
	require.NotNil(t, readData[0].EndTime)
	assert.WithinDuration(t, *data[0].EndTime, *readData[0].EndTime, time.Nanosecond)
	require.NotNil(t, readData[0].RunDurationMs)
	assert.Equal(t, *data[0].RunDurationMs, *readData[0].RunDurationMs)

	assert.Nil(t, readData[1].EndTime)
	assert.Nil(t, readData[1].RunDurationMs)
	assert.Nil(t, readData[1].ConfigParams)
}

func TestWriteMarginalsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "marginals.parquet")
	data := []Marginal{
		{RunID: "run-1", Variable: "gender", Category: "F", Target: 0.5, Unweighted: 0.6, Weighted: 0.5, Count: 6},
		{RunID: "run-1", Variable: "gender", Category: "M", Target: 0.5, Unweighted: 0.4, Weighted: 0.5, Count: 4},
	}
	require.NoError(t, WriteMarginalsParquet(data, outputPath))

	rows, err := parquet.ReadFile[Marginal](outputPath)
	require.NoError(t, err)
	assert.Equal(t, data, rows)
}

func TestWriteWeights(t *testing.T) {
	var buf bytes.Buffer
	data := ConvertWeights([]float64{0.8, 1.25, 1})
	require.NoError(t, WriteWeights(&buf, data))

	rows, err := parquet.Read[Weight](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].Row)
	assert.Equal(t, 1.25, rows[1].Weight)
}

func TestWriteRunsParquet_BadPath(t *testing.T) {
	err := WriteRunsParquet(sampleRuns(), filepath.Join(t.TempDir(), "missing", "runs.parquet"))
	assert.Error(t, err)
}

func TestConvertRecords(t *testing.T) {
	end := time.Now()
	runs := ConvertRunRecords([]schema.RunRecord{{
		RunID:       "abc",
		StartTime:   end.Add(-time.Second),
		EndTime:     &end,
		InputPath:   "in.csv",
		Respondents: 10,
		Iterations:  3,
		Converged:   true,
		Warnings:    1,
		EffectiveN:  9.5,
	}})
	require.Len(t, runs, 1)
	assert.Equal(t, "abc", runs[0].RunID)
	assert.Equal(t, int32(3), runs[0].Iterations)
	assert.Equal(t, &end, runs[0].EndTime)

	marginals := ConvertMarginalRecords([]schema.MarginalRecord{{RunID: "abc", Variable: "age", Category: "18-34", Target: 0.3, Count: 4}})
	require.Len(t, marginals, 1)
	assert.Equal(t, "18-34", marginals[0].Category)
	assert.Equal(t, int32(4), marginals[0].Count)
}
