package cmd

import (
	"github.com/spf13/cobra"

	"github.com/surveykit/raking/core"
	"github.com/surveykit/raking/internal/contract"
)

// rakeCmd computes survey weights for a respondent table.
var rakeCmd = &cobra.Command{
	Use:   "rake [input]",
	Short: "Compute survey weights by raking to population targets.",
	Long: `Adjust per-respondent weights so the weighted share of each category
matches its population target, one variable at a time, until the total
weight change falls below the tolerance.

Targets come from a YAML or JSON file (--targets), inline flags (--target),
or both. An inline target replaces the same variable from the file.

Examples:
  # Rake against a target file and print the marginals table
  raking rake survey.csv --targets population.yaml

  # Rake with inline targets and write the table back with a weight column
  raking rake survey.csv --target 'gender=M:49%,F:51%' --target 'region=N:0.3,S:0.7' \
    --output csv --output-file weighted.csv

  # Full result as JSON, keeping unmatched target categories in the mix
  raking rake survey.xlsx --sheet wave2 --targets t.yaml --missing-policy keep --output json`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteRake(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot rake survey weights", err)
		}
	},
}
