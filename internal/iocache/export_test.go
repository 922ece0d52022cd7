package iocache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveykit/raking/schema"
)

func TestExportHistory(t *testing.T) {
	end := time.Now()
	history := &MockHistoryStore{}
	history.On("GetStatus").Return(schema.HistoryStatus{
		Backend:    "sqlite",
		Connected:  true,
		TotalRuns:  1,
		TableSizes: map[string]int64{runsTable: 1, marginalsTable: 1},
	}, nil)
	history.On("GetAllRuns").Return([]schema.RunRecord{{RunID: "r1", StartTime: end.Add(-time.Second), EndTime: &end}}, nil)
	history.On("GetAllMarginals").Return([]schema.MarginalRecord{{RunID: "r1", Variable: "gender", Category: "F"}}, nil)

	mgr := &MockCacheManager{}
	mgr.On("GetHistoryStore").Return(history)

	base := filepath.Join(t.TempDir(), "history")
	require.NoError(t, ExportHistory(mgr, base))

	for _, suffix := range []string{".runs.parquet", ".marginals.parquet"} {
		info, err := os.Stat(base + suffix)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	history.AssertExpectations(t)
}

func TestExportHistory_Errors(t *testing.T) {
	mgr := &MockCacheManager{}
	assert.Error(t, ExportHistory(mgr, ""))

	mgr.On("GetHistoryStore").Return(nil).Once()
	assert.Error(t, ExportHistory(mgr, "out"))

	empty := &MockHistoryStore{}
	empty.On("GetStatus").Return(schema.HistoryStatus{}, nil)
	mgr.On("GetHistoryStore").Return(empty).Once()
	err := ExportHistory(mgr, "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raking history")

	failing := &MockHistoryStore{}
	failing.On("GetStatus").Return(schema.HistoryStatus{TotalRuns: 2}, nil)
	failing.On("GetAllRuns").Return(nil, errors.New("boom"))
	mgr.On("GetHistoryStore").Return(failing).Once()
	assert.ErrorContains(t, ExportHistory(mgr, "out"), "boom")
}
