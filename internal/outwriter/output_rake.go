package outwriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
	"github.com/surveykit/raking/internal/parquet"
	"github.com/surveykit/raking/schema"
)

// WriteRakeResult outputs a raking result, dispatching based on the output format configured.
func WriteRakeResult(ds *dataset.Dataset, result *rake.Result, cfg *contract.Config, duration time.Duration) error {
	fmtFloat := createFormatter(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeRakeJSON(w, result, cfg, duration)
		}, "Wrote JSON")
	case schema.CSVOut:
		if ds == nil {
			return errors.New("csv output needs the respondent table")
		}
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeWeightedCSV(w, ds, result.Weights, cfg.WeightColumn)
		}, "Wrote weighted CSV")
	case schema.ParquetOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return parquet.WriteWeights(w, parquet.ConvertWeights(result.Weights))
		}, "Wrote Parquet weights")
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeRakeTable(w, result, cfg, fmtFloat, duration)
		}, "Wrote table")
	}
}

// writeRakeTable renders the marginals table followed by the run summary.
func writeRakeTable(w io.Writer, result *rake.Result, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	if err := writeMarginalsTable(w, result.Marginals, cfg, fmtFloat, "Weighted"); err != nil {
		return err
	}

	status := contract.GetStatusLabel(result.Converged)
	if cfg.UseColors {
		status = contract.GetColorStatusLabel(result.Converged)
	}
	lastDelta := 0.0
	if len(result.Deltas) > 0 {
		lastDelta = result.Deltas[len(result.Deltas)-1]
	}
	s := result.Summary
	lines := []string{
		fmt.Sprintf("%s after %d iterations (last change %s, tolerance %g)",
			status, result.Iterations, fmtFloat(lastDelta), cfg.Solver.Tolerance),
		fmt.Sprintf("Weights: min %s, max %s, mean %s, sum %s",
			fmtFloat(s.Min), fmtFloat(s.Max), fmtFloat(s.Mean), fmtFloat(s.Sum)),
		fmt.Sprintf("Effective sample size: %s of %d (efficiency %.1f%%, design effect %s)",
			fmtFloat(s.EffectiveN), len(result.Weights), s.Efficiency*100, fmtFloat(s.DesignEff)),
		fmt.Sprintf("Raked %d respondents in %v with %d workers. Cache backend: %s",
			len(result.Weights), duration, cfg.Solver.Workers, cfg.CacheBackend),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// writeMarginalsTable renders one row per (variable, category).
func writeMarginalsTable(w io.Writer, marginals []rake.Marginal, cfg *contract.Config, fmtFloat func(float64) string, achieved string) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Variable", "Category", "Target", "Unweighted", achieved, "Gap", "Status", "N"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	labelWidth := GetMaxTableLabelWidth(cfg)
	data := make([][]string, 0, len(marginals))
	for _, m := range marginals {
		gapLabel := schema.GetGapLabel(m.Gap())
		if cfg.UseColors {
			gapLabel = contract.GetColorGapLabel(m.Gap())
		}
		data = append(data, []string{
			contract.TruncateLabel(m.Variable, labelWidth),
			contract.TruncateLabel(m.Category, labelWidth),
			fmtFloat(m.Target),
			fmtFloat(m.Unweighted),
			fmtFloat(m.Weighted),
			fmtFloat(m.Gap()),
			gapLabel,
			strconv.Itoa(m.Count),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeWeightedCSV writes the respondent table with the weight column set.
// An existing column of the same name is overwritten in place. Weights keep
// full precision so a re-read table reproduces the raked marginals.
func writeWeightedCSV(w io.Writer, ds *dataset.Dataset, weights []float64, weightColumn string) error {
	if len(weights) != ds.Len() {
		return fmt.Errorf("have %d weights for %d respondents", len(weights), ds.Len())
	}
	if weightColumn == "" {
		weightColumn = schema.DefaultWeightColumn
	}

	header := append([]string{}, ds.Header...)
	idx := len(header)
	for i, h := range header {
		if h == weightColumn {
			idx = i
		}
	}
	if idx == len(header) {
		header = append(header, weightColumn)
	}

	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		rec := make([]string, len(header))
		for i, row := range ds.Records {
			copy(rec, row)
			rec[idx] = strconv.FormatFloat(weights[i], 'g', -1, 64)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// jsonMarginal adds the gap and its label to a marginal.
type jsonMarginal struct {
	rake.Marginal
	Gap    float64 `json:"gap"`
	Status string  `json:"status"`
}

// writeRakeJSON writes the full result in JSON format.
func writeRakeJSON(w io.Writer, result *rake.Result, cfg *contract.Config, duration time.Duration) error {
	marginals := make([]jsonMarginal, len(result.Marginals))
	for i, m := range result.Marginals {
		marginals[i] = jsonMarginal{Marginal: m, Gap: m.Gap(), Status: schema.GetGapLabel(m.Gap())}
	}
	warnings := result.Warnings
	if warnings == nil {
		warnings = []rake.Warning{}
	}

	output := struct {
		Input       string             `json:"input"`
		Respondents int                `json:"respondents"`
		Status      string             `json:"status"`
		Converged   bool               `json:"converged"`
		Iterations  int                `json:"iterations"`
		DurationMs  int64              `json:"duration_ms"`
		Summary     rake.WeightSummary `json:"summary"`
		Marginals   []jsonMarginal     `json:"marginals"`
		Warnings    []rake.Warning     `json:"warnings"`
		Deltas      []float64          `json:"deltas"`
		Weights     []float64          `json:"weights"`
	}{
		Input:       cfg.InputPath,
		Respondents: len(result.Weights),
		Status:      contract.GetStatusLabel(result.Converged),
		Converged:   result.Converged,
		Iterations:  result.Iterations,
		DurationMs:  duration.Milliseconds(),
		Summary:     result.Summary,
		Marginals:   marginals,
		Warnings:    warnings,
		Deltas:      result.Deltas,
		Weights:     result.Weights,
	}
	return writeJSON(w, output)
}
