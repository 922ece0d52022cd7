package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

// Table names for run history.
const (
	runsTable      = "raking_runs"
	marginalsTable = "raking_marginals"
)

// HistoryStoreImpl implements the HistoryStore interface.
type HistoryStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &HistoryStoreImpl{} // Compile-time check

// NewHistoryStore creates a new HistoryStore with the specified backend.
func NewHistoryStore(backend schema.DatabaseBackend, connStr string) (*HistoryStoreImpl, error) {
	if backend == schema.NoneBackend {
		// Return a no-op store for disabled tracking
		return &HistoryStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, GetHistoryDBFilePath())
	if err != nil {
		return nil, err
	}

	if err := createHistoryTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &HistoryStoreImpl{db: db, backend: backend}, nil
}

// createHistoryTables creates the run tracking tables.
func createHistoryTables(db *sql.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{runsTable, getCreateRunsQuery(backend)},
		{marginalsTable, getCreateMarginalsQuery(backend)},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}
	return nil
}

// getCreateRunsQuery returns the CREATE TABLE query for raking_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(runsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id CHAR(36) PRIMARY KEY,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms INT,
				input_path VARCHAR(1024) NOT NULL,
				respondents INT NOT NULL DEFAULT 0,
				iterations INT NOT NULL DEFAULT 0,
				converged BOOLEAN NOT NULL DEFAULT FALSE,
				warnings INT NOT NULL DEFAULT 0,
				effective_n DOUBLE NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id TEXT PRIMARY KEY,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms INT,
				input_path TEXT NOT NULL,
				respondents INT NOT NULL DEFAULT 0,
				iterations INT NOT NULL DEFAULT 0,
				converged BOOLEAN NOT NULL DEFAULT FALSE,
				warnings INT NOT NULL DEFAULT 0,
				effective_n DOUBLE PRECISION NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id TEXT PRIMARY KEY,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				input_path TEXT NOT NULL,
				respondents INTEGER NOT NULL DEFAULT 0,
				iterations INTEGER NOT NULL DEFAULT 0,
				converged INTEGER NOT NULL DEFAULT 0,
				warnings INTEGER NOT NULL DEFAULT 0,
				effective_n REAL NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quotedTableName)
	}
}

// getCreateMarginalsQuery returns the CREATE TABLE query for raking_marginals.
func getCreateMarginalsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(marginalsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id CHAR(36) NOT NULL,
				variable VARCHAR(255) NOT NULL,
				category VARCHAR(255) NOT NULL,
				target DOUBLE NOT NULL,
				unweighted DOUBLE NOT NULL,
				weighted DOUBLE NOT NULL,
				respondents INT NOT NULL,
				PRIMARY KEY (run_id, variable, category)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id TEXT NOT NULL,
				variable TEXT NOT NULL,
				category TEXT NOT NULL,
				target DOUBLE PRECISION NOT NULL,
				unweighted DOUBLE PRECISION NOT NULL,
				weighted DOUBLE PRECISION NOT NULL,
				respondents INT NOT NULL,
				PRIMARY KEY (run_id, variable, category)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id TEXT NOT NULL,
				variable TEXT NOT NULL,
				category TEXT NOT NULL,
				target REAL NOT NULL,
				unweighted REAL NOT NULL,
				weighted REAL NOT NULL,
				respondents INTEGER NOT NULL,
				PRIMARY KEY (run_id, variable, category)
			);
		`, quotedTableName)
	}
}

// BeginRun creates a new run and returns its unique ID.
func (hs *HistoryStoreImpl) BeginRun(startTime time.Time, inputPath string, configParams map[string]any) (string, error) {
	// Skip for NoneBackend
	if hs.backend == schema.NoneBackend || hs.db == nil {
		return "", nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config params: %w", err)
	}

	runID := uuid.NewString()
	query := fmt.Sprintf(`INSERT INTO %s (run_id, start_time, input_path, config_params) VALUES (%s)`,
		quoteTableName(runsTable, hs.backend), placeholders(hs.backend, 4))
	if _, err := hs.db.Exec(query, runID, formatTime(startTime, hs.backend), inputPath, string(configJSON)); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun updates the run with completion data.
func (hs *HistoryStoreImpl) EndRun(runID string, endTime time.Time, outcome schema.RunOutcome) error {
	// Skip for NoneBackend
	if hs.backend == schema.NoneBackend || hs.db == nil {
		return nil
	}

	quotedTableName := quoteTableName(runsTable, hs.backend)
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = %s`, quotedTableName, placeholder(hs.backend, 1))
	startTime, err := hs.scanTime(hs.db.QueryRow(query, runID))
	if err != nil {
		return fmt.Errorf("failed to get start_time for run %s: %w", runID, err)
	}

	durationMs := endTime.Sub(startTime).Milliseconds()
	p := func(n int) string { return placeholder(hs.backend, n) }
	updateQuery := fmt.Sprintf(`UPDATE %s SET end_time = %s, run_duration_ms = %s, respondents = %s, iterations = %s,
		converged = %s, warnings = %s, effective_n = %s WHERE run_id = %s`,
		quotedTableName, p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8))
	_, err = hs.db.Exec(updateQuery,
		formatTime(endTime, hs.backend), durationMs, outcome.Respondents, outcome.Iterations,
		outcome.Converged, outcome.Warnings, outcome.EffectiveN, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordMarginals stores the achieved marginals of a run in one transaction.
func (hs *HistoryStoreImpl) RecordMarginals(runID string, marginals []schema.MarginalRecord) error {
	// Skip for NoneBackend
	if hs.backend == schema.NoneBackend || hs.db == nil || len(marginals) == 0 {
		return nil
	}

	tx, err := hs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`INSERT INTO %s (run_id, variable, category, target, unweighted, weighted, respondents) VALUES (%s)`,
		quoteTableName(marginalsTable, hs.backend), placeholders(hs.backend, 7))
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare marginal insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range marginals {
		if _, err := stmt.Exec(runID, m.Variable, m.Category, m.Target, m.Unweighted, m.Weighted, m.Count); err != nil {
			return fmt.Errorf("failed to insert marginal %s/%s: %w", m.Variable, m.Category, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (hs *HistoryStoreImpl) Close() error {
	if hs.db != nil {
		return hs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the history store.
func (hs *HistoryStoreImpl) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(hs.backend),
		Connected:  hs.db != nil,
		TableSizes: make(map[string]int64),
	}

	if hs.backend == schema.NoneBackend || hs.db == nil {
		return status, nil
	}

	quotedRuns := quoteTableName(runsTable, hs.backend)
	if err := hs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedRuns)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		row := hs.db.QueryRow(fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY start_time DESC LIMIT 1", quotedRuns))
		var err error
		status.LastRunID, status.LastRunTime, err = hs.scanIDAndTime(row)
		if err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}

		row = hs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY start_time ASC LIMIT 1", quotedRuns))
		status.OldestRunTime, err = hs.scanTime(row)
		if err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}

		respondentsQuery := fmt.Sprintf("SELECT COALESCE(SUM(respondents), 0) FROM %s", quotedRuns)
		if err := hs.db.QueryRow(respondentsQuery).Scan(&status.TotalRespondents); err != nil {
			return status, fmt.Errorf("failed to get total respondents: %w", err)
		}
	}

	for _, table := range []string{runsTable, marginalsTable} {
		var count int64
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, hs.backend))
		if err := hs.db.QueryRow(countQuery).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllRuns retrieves all runs from the store, oldest first.
func (hs *HistoryStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	// Skip for NoneBackend
	if hs.backend == schema.NoneBackend || hs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, start_time, end_time, run_duration_ms, input_path, respondents,
		iterations, converged, warnings, effective_n, config_params FROM %s ORDER BY start_time, run_id`,
		quoteTableName(runsTable, hs.backend))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var record schema.RunRecord
		var start, end any
		if err := rows.Scan(&record.RunID, &start, &end, &record.DurationMs, &record.InputPath, &record.Respondents,
			&record.Iterations, &record.Converged, &record.Warnings, &record.EffectiveN, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if record.StartTime, err = toTime(start); err != nil {
			return nil, fmt.Errorf("failed to parse start_time: %w", err)
		}
		if end != nil {
			endTime, err := toTime(end)
			if err != nil {
				return nil, fmt.Errorf("failed to parse end_time: %w", err)
			}
			record.EndTime = &endTime
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllMarginals retrieves all marginal rows from the store.
func (hs *HistoryStoreImpl) GetAllMarginals() ([]schema.MarginalRecord, error) {
	// Skip for NoneBackend
	if hs.backend == schema.NoneBackend || hs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, variable, category, target, unweighted, weighted, respondents
		FROM %s ORDER BY run_id, variable, category`, quoteTableName(marginalsTable, hs.backend))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query marginals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.MarginalRecord
	for rows.Next() {
		var r schema.MarginalRecord
		if err := rows.Scan(&r.RunID, &r.Variable, &r.Category, &r.Target, &r.Unweighted, &r.Weighted, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan marginal: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marginals: %w", err)
	}
	return results, nil
}

func (hs *HistoryStoreImpl) scanTime(row *sql.Row) (time.Time, error) {
	var v any
	if err := row.Scan(&v); err != nil {
		return time.Time{}, err
	}
	return toTime(v)
}

func (hs *HistoryStoreImpl) scanIDAndTime(row *sql.Row) (string, time.Time, error) {
	var id string
	var v any
	if err := row.Scan(&id, &v); err != nil {
		return "", time.Time{}, err
	}
	t, err := toTime(v)
	return id, t, err
}

// toTime accepts native timestamps and the RFC 3339 text SQLite stores.
// MySQL without parseTime=true returns the DATETIME as bytes.
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseStoredTime(t)
	case []byte:
		return parseStoredTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05.999999", s)
}
