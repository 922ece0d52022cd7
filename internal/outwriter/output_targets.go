package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

// WriteCheckResult outputs a targets check, dispatching based on the output format configured.
func WriteCheckResult(check *rake.CheckResult, cfg *contract.Config) error {
	fmtFloat := createFormatter(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, check)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCheckCSV(w, check, fmtFloat)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("%w for targets check: %s", ErrUnsupportedOutput, cfg.Output)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			if err := writeMarginalsTable(w, check.Marginals, cfg, fmtFloat, "Sample"); err != nil {
				return err
			}
			_, err := fmt.Fprintf(w, "Checked targets against %d respondents: %d warnings\n", check.Respondents, len(check.Warnings))
			return err
		}, "Wrote table")
	}
}

func writeCheckCSV(w io.Writer, check *rake.CheckResult, fmtFloat func(float64) string) error {
	header := []string{"variable", "category", "target", "sample", "gap", "count"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, m := range check.Marginals {
			rec := []string{
				m.Variable,
				m.Category,
				fmtFloat(m.Target),
				fmtFloat(m.Unweighted),
				fmtFloat(m.Gap()),
				strconv.Itoa(m.Count),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
