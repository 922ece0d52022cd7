// Package parquet exports raking weights and run history to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/surveykit/raking/schema"
)

// RakingRun represents a single raking run with metadata.
// This struct maps to the raking_runs database table.
type RakingRun struct {
	// RunID is the unique identifier for this run
	RunID string `parquet:"run_id,snappy"`

	// StartTime is when the run began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the run completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	InputPath   string  `parquet:"input_path,snappy"`
	Respondents int32   `parquet:"respondents,snappy"`
	Iterations  int32   `parquet:"iterations,snappy"`
	Converged   bool    `parquet:"converged,snappy"`
	Warnings    int32   `parquet:"warnings,snappy"`
	EffectiveN  float64 `parquet:"effective_n,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// Marginal is one achieved category share of a run.
// This struct maps to the raking_marginals database table.
type Marginal struct {
	RunID      string  `parquet:"run_id,snappy"`
	Variable   string  `parquet:"variable,snappy"`
	Category   string  `parquet:"category,snappy"`
	Target     float64 `parquet:"target,snappy"`
	Unweighted float64 `parquet:"unweighted,snappy"`
	Weighted   float64 `parquet:"weighted,snappy"`
	Count      int32   `parquet:"count,snappy"`
}

// Weight is the solved weight of one respondent row.
type Weight struct {
	Row    int64   `parquet:"row,snappy"`
	Weight float64 `parquet:"weight,snappy"`
}

// WriteRunsParquet writes a slice of RakingRun structs to a Parquet file.
func WriteRunsParquet(data []RakingRun, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteMarginalsParquet writes a slice of Marginal structs to a Parquet file.
func WriteMarginalsParquet(data []Marginal, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteWeights streams respondent weights to w.
func WriteWeights(w io.Writer, data []Weight) error {
	return write(w, data)
}

func writeFile[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file, data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// write infers the schema from the struct tags of T.
func write[T any](w io.Writer, data []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertRunRecords converts schema.RunRecord to RakingRun for Parquet export.
func ConvertRunRecords(records []schema.RunRecord) []RakingRun {
	result := make([]RakingRun, len(records))
	for i, record := range records {
		result[i] = RakingRun{
			RunID:         record.RunID,
			StartTime:     record.StartTime,
			EndTime:       record.EndTime,
			RunDurationMs: record.DurationMs,
			InputPath:     record.InputPath,
			Respondents:   record.Respondents,
			Iterations:    record.Iterations,
			Converged:     record.Converged,
			Warnings:      record.Warnings,
			EffectiveN:    record.EffectiveN,
			ConfigParams:  record.ConfigParams,
		}
	}
	return result
}

// ConvertMarginalRecords converts schema.MarginalRecord to Marginal for Parquet export.
func ConvertMarginalRecords(records []schema.MarginalRecord) []Marginal {
	result := make([]Marginal, len(records))
	for i, record := range records {
		result[i] = Marginal{
			RunID:      record.RunID,
			Variable:   record.Variable,
			Category:   record.Category,
			Target:     record.Target,
			Unweighted: record.Unweighted,
			Weighted:   record.Weighted,
			Count:      record.Count,
		}
	}
	return result
}

// ConvertWeights numbers weights by their 1-based respondent row.
func ConvertWeights(weights []float64) []Weight {
	result := make([]Weight, len(weights))
	for i, w := range weights {
		result[i] = Weight{Row: int64(i + 1), Weight: w}
	}
	return result
}
