//go:build integration

// Package integration contains integration tests for raking.
// These tests are excluded from normal test runs due to build tags.
// To run these tests: go test -tags integration ./integration
package integration

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noStores = []string{"--cache-backend", "none", "--color", "no"}

// TestRakeVerification rakes the fixture and recomputes the weighted
// marginals from the written CSV.
func TestRakeVerification(t *testing.T) {
	dir := writeFixtures(t)

	args := append([]string{"rake", "survey.csv", "--targets", "targets.yaml", "--output", "csv", "--output-file", "weighted.csv"}, noStores...)
	_, err := runRakingCommand(t, dir, args...)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "weighted.csv"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 11)
	require.Equal(t, []string{"id", "gender", "region", "q1", "weight"}, rows[0])

	shares := map[string]float64{}
	total := 0.0
	for _, row := range rows[1:] {
		w, err := strconv.ParseFloat(row[4], 64)
		require.NoError(t, err)
		assert.Greater(t, w, 0.0)
		shares["gender="+row[1]] += w
		shares["region="+row[2]] += w
		total += w
	}

	// Weights are written with the default precision
	assert.InDelta(t, 10, total, 1e-2)
	want := map[string]float64{
		"gender=M":     0.49,
		"gender=F":     0.51,
		"region=North": 0.4,
		"region=South": 0.6,
	}
	for key, target := range want {
		assert.InDelta(t, target, shares[key]/total, 1e-2, key)
	}
}

// TestCrosstabVerification tabulates the raked output by its weight column.
func TestCrosstabVerification(t *testing.T) {
	dir := writeFixtures(t)

	args := append([]string{"rake", "survey.csv", "--targets", "targets.yaml", "--output", "csv", "--output-file", "weighted.csv"}, noStores...)
	_, err := runRakingCommand(t, dir, args...)
	require.NoError(t, err)

	args = append([]string{"crosstab", "weighted.csv", "--rows", "q1", "--columns", "gender", "--normalize", "columns", "--output", "json"}, noStores...)
	out, err := runRakingCommand(t, dir, args...)
	require.NoError(t, err)

	var tab struct {
		Weighted     bool        `json:"weighted"`
		RowLabels    []string    `json:"row_labels"`
		ColumnLabels []string    `json:"column_labels"`
		Cells        [][]float64 `json:"cells"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tab))
	assert.True(t, tab.Weighted)
	assert.Equal(t, []string{"No", "Yes"}, tab.RowLabels)
	assert.Equal(t, []string{"F", "M"}, tab.ColumnLabels)
	for c := range tab.ColumnLabels {
		assert.InDelta(t, 100, tab.Cells[0][c]+tab.Cells[1][c], 1e-6)
	}
}

// TestTargetsCheckVerification reports missing categories without raking.
func TestTargetsCheckVerification(t *testing.T) {
	dir := writeFixtures(t)

	args := append([]string{"targets", "check", "survey.csv", "--target", "region=North:0.3,South:0.5,East:0.2", "--output", "json"}, noStores...)
	out, err := runRakingCommand(t, dir, args...)
	require.NoError(t, err)

	var check struct {
		Respondents int `json:"respondents"`
		Warnings    []struct {
			Kind     string `json:"kind"`
			Category string `json:"category"`
		} `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.Equal(t, 10, check.Respondents)

	found := false
	for _, w := range check.Warnings {
		if w.Kind == "missing_category" && w.Category == "East" {
			found = true
		}
	}
	assert.True(t, found, "expected a missing_category warning for East")
}
