package cmd

import (
	"github.com/spf13/cobra"

	"github.com/surveykit/raking/core"
	"github.com/surveykit/raking/internal/contract"
)

// crosstabCmd tabulates one question against one banner column.
var crosstabCmd = &cobra.Command{
	Use:   "crosstab [input]",
	Short: "Show a weighted crosstab of two columns.",
	Long: `Cross-tabulate a question (--rows) by a banner column (--columns).

Weights are read from --weight-column when the table has it. Otherwise,
when targets are given, the table is raked first. With neither, counts
are unweighted and a warning is printed.

Examples:
  # Column percentages of q1 by gender using an existing weight column
  raking crosstab weighted.csv --rows q1 --columns gender --normalize columns

  # Rake on the fly and export the table as CSV
  raking crosstab survey.csv --rows q1 --columns region --targets t.yaml --output csv`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteCrosstab(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot build crosstab", err)
		}
	},
}

// bannerCmd writes one crosstab CSV per question and banner pair.
var bannerCmd = &cobra.Command{
	Use:   "banner [input]",
	Short: "Write weighted crosstabs of every question by each banner column.",
	Long: `Batch crosstabs for reporting. For each question and banner column a
CSV file named <question>_by_<banner>.csv is written to --output-dir.
A pair that fails is reported and skipped.

Examples:
  # Every other column by gender and region
  raking banner weighted.csv --banner gender,region

  # Selected questions, raked on the fly
  raking banner survey.csv --banner region --questions q1,q2 --targets t.yaml --output-dir out`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteBanner(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot write banner crosstabs", err)
		}
	},
}
