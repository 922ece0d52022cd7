package iocache

import (
	"errors"
	"fmt"

	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/parquet"
)

// ExecuteHistoryExport writes the run history of the global manager to Parquet files.
func ExecuteHistoryExport(outputFile string) error {
	return ExportHistory(Manager, outputFile)
}

// ExportHistory writes runs and marginals to <outputFile>.runs.parquet and
// <outputFile>.marginals.parquet.
func ExportHistory(mgr contract.CacheManager, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	store := mgr.GetHistoryStore()
	if store == nil {
		return errors.New("history store is not initialized")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get history status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no raking history found to export")
	}

	fmt.Printf("Exporting data from %s backend...\n", status.Backend)
	fmt.Printf("Total raking runs: %d\n", status.TotalRuns)
	fmt.Printf("Total marginal records: %d\n", status.TableSizes[marginalsTable])

	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	marginals, err := store.GetAllMarginals()
	if err != nil {
		return fmt.Errorf("failed to retrieve marginals: %w", err)
	}

	parquetRuns := parquet.ConvertRunRecords(runs)
	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquetRuns, runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	fmt.Printf("Exported %d runs to: %s\n", len(parquetRuns), runsFile)

	parquetMarginals := parquet.ConvertMarginalRecords(marginals)
	marginalsFile := outputFile + ".marginals.parquet"
	if err := parquet.WriteMarginalsParquet(parquetMarginals, marginalsFile); err != nil {
		return fmt.Errorf("failed to write marginals: %w", err)
	}
	fmt.Printf("Exported %d marginal records to: %s\n", len(parquetMarginals), marginalsFile)

	fmt.Println("\nExport complete! The Parquet files can be used with:")
	fmt.Println("  - Pandas (via pyarrow)")
	fmt.Println("  - R (via arrow)")
	fmt.Println("  - DuckDB")
	fmt.Println("  - Any other Parquet-compatible tool")

	return nil
}
