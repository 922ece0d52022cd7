package outwriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

// ErrUnsupportedOutput is returned for output modes a writer cannot produce.
var ErrUnsupportedOutput = errors.New("unsupported output mode")

// WriteCrosstabResult outputs a crosstab, dispatching based on the output format configured.
func WriteCrosstabResult(tab *crosstab.Table, cfg *contract.Config) error {
	fmtFloat := createFormatter(cfg.Precision)

	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, tab)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return WriteCrosstabCSV(w, tab, cfg.Precision)
		}, "Wrote CSV")
	case schema.ParquetOut:
		return fmt.Errorf("%w for crosstabs: %s", ErrUnsupportedOutput, cfg.Output)
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeCrosstabTable(w, tab, cfg, fmtFloat)
		}, "Wrote table")
	}
}

// WriteCrosstabCSV writes a crosstab with the row labels in the first column.
func WriteCrosstabCSV(w io.Writer, tab *crosstab.Table, precision int) error {
	fmtFloat := createFormatter(precision)
	header := append([]string{tab.RowVariable}, tab.ColumnLabels...)
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for r, label := range tab.RowLabels {
			rec := make([]string, 0, len(header))
			rec = append(rec, label)
			for _, v := range tab.Cells[r] {
				rec = append(rec, fmtFloat(v))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCrosstabTable(w io.Writer, tab *crosstab.Table, cfg *contract.Config, fmtFloat func(float64) string) error {
	labelWidth := GetMaxTableLabelWidth(cfg)
	header := []string{contract.TruncateLabel(tab.RowVariable+" \\ "+tab.ColumnVariable, labelWidth)}
	for _, c := range tab.ColumnLabels {
		header = append(header, contract.TruncateLabel(c, labelWidth))
	}

	table := tablewriter.NewWriter(w)
	table.Header(header)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(tab.RowLabels))
	for r, label := range tab.RowLabels {
		row := []string{contract.TruncateLabel(label, labelWidth)}
		for _, v := range tab.Cells[r] {
			row = append(row, fmtFloat(v))
		}
		data = append(data, row)
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	kind := "unweighted counts"
	if tab.Weighted {
		kind = "weighted"
	}
	unit := "percent of total"
	switch tab.Normalize {
	case crosstab.NoNormalize:
		unit = "sums"
	case crosstab.IndexNormalize:
		unit = "row percent"
	case crosstab.ColumnsNormalize:
		unit = "column percent"
	}
	_, err := fmt.Fprintf(w, "%s by %s (%s, %s)\n", tab.RowVariable, tab.ColumnVariable, kind, unit)
	return err
}
