package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/iocache"
	"github.com/surveykit/raking/schema"
)

// historyBackendFromConfig reads the history backend settings. An empty
// backend means history tracking is disabled.
func historyBackendFromConfig() (schema.DatabaseBackend, string, error) {
	if err := loadConfigFile(); err != nil {
		return "", "", err
	}

	backend := schema.DatabaseBackend(viper.GetString("history-backend"))
	if backend == "" {
		backend = schema.NoneBackend
	}
	connStr := viper.GetString("history-db-connect")

	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// historySetup loads minimal configuration needed for history operations.
func historySetup() error {
	backend, connStr, err := historyBackendFromConfig()
	if err != nil {
		return err
	}

	// No weight cache for history commands
	if err := iocache.InitStores("", "", backend, connStr); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}

	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// historySetupWrapper wraps historySetup to provide PreRunE for history commands.
func historySetupWrapper(_ *cobra.Command, _ []string) error {
	return historySetup()
}

// historyMigrateSetupWrapper loads configuration for migrations without opening the
// stores, so migrations can run on a fresh database.
func historyMigrateSetupWrapper(_ *cobra.Command, _ []string) error {
	backend, connStr, err := historyBackendFromConfig()
	if err != nil {
		return err
	}
	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = connStr
	return nil
}

// historyCmd focused on run history management.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage raking run history and exports",
	Long: `Manage the history of raking runs.

When --history-backend is set, every rake run stores:
- Run metadata (timestamp, settings, duration, convergence)
- Achieved marginals for each variable and category

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled, default)

Subcommands:
  status  - Show history statistics
  export  - Export runs and marginals to Parquet
  clear   - Remove all history
  migrate - Run database schema migrations

Examples:
  raking history status
  raking history export --output-file history`,
}

// historyClearCmd clears the run history.
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored raking runs",
	Long: `Delete all stored runs and marginals.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  raking history export --output-file backup
  raking history clear`,
	PreRunE: historySetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		dbPath := cfg.HistoryDBConnect
		if dbPath == "" {
			dbPath = contract.GetHistoryDBFilePath()
		}
		if err := iocache.ClearHistory(cfg.HistoryBackend, dbPath, cfg.HistoryDBConnect); err != nil {
			contract.LogFatal("Failed to clear history", err)
		}
		fmt.Println("History cleared successfully.")
	},
}

// historyStatusCmd shows history status.
var historyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run history statistics and connection details",
	Long: `Show the backend, connection state, run count, newest and oldest run
and table sizes of the history store.

Examples:
  raking history status`,
	PreRunE: historySetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetHistoryStore()
		if store == nil {
			contract.LogFatal("Failed to get history status", fmt.Errorf("history backend is not configured"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get history status", err)
		}
		iocache.PrintHistoryStatus(status)
	},
}

// historyExportCmd exports history to Parquet files.
var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to Parquet",
	Long: `Export all stored runs and marginals to two Parquet files:
<output-file>.runs.parquet and <output-file>.marginals.parquet.

Requires: --output-file parameter

Examples:
  raking history export --output-file history
  duckdb -c "SELECT variable, avg(weighted - target) FROM 'history.marginals.parquet' GROUP BY 1"`,
	PreRunE: historySetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ExecuteHistoryExport(cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export history", err)
		}
	},
}

// historyMigrateCmd runs database migrations for the history store.
var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  raking history migrate --history-backend sqlite

  # Migrate to specific version
  raking history migrate --target-version 2

  # Rollback to initial state
  raking history migrate --target-version 0`,
	PreRunE: historyMigrateSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iocache.MigrateHistory(cfg.HistoryBackend, cfg.HistoryDBConnect, targetVersion); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
