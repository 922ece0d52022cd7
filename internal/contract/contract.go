// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"time"

	"github.com/surveykit/raking/schema"
)

// CacheManager defines the interface for managing the persistent stores.
// This allows the storage layer to be mocked for testing.
type CacheManager interface {
	GetWeightStore() CacheStore
	GetHistoryStore() HistoryStore
}

// CacheStore defines the interface for solved-weight cache storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// HistoryStore defines the interface for tracking raking runs and their marginals.
type HistoryStore interface {
	// BeginRun creates a new run and returns its unique ID
	BeginRun(startTime time.Time, inputPath string, configParams map[string]any) (string, error)

	// EndRun updates the run with completion data
	EndRun(runID string, endTime time.Time, outcome schema.RunOutcome) error

	// RecordMarginals stores the achieved marginals of a run
	RecordMarginals(runID string, marginals []schema.MarginalRecord) error

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// GetAllRuns retrieves every recorded run for export
	GetAllRuns() ([]schema.RunRecord, error)

	// GetAllMarginals retrieves every recorded marginal for export
	GetAllMarginals() ([]schema.MarginalRecord, error)

	// Close closes the underlying connection
	Close() error
}
