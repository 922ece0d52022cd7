package cmd

import (
	"github.com/spf13/cobra"

	"github.com/surveykit/raking/core"
	"github.com/surveykit/raking/internal/contract"
)

// targetsCmd groups target file utilities.
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Inspect population targets",
	Long: `Utilities for population target files.

Subcommands:
  check - Compare targets with the sample without raking`,
}

// targetsCheckCmd validates targets against a table.
var targetsCheckCmd = &cobra.Command{
	Use:   "check [input]",
	Short: "Validate targets against a respondent table without raking",
	Long: `Resolve the targets, apply the missing-category policy and print each
effective target next to the unweighted sample share.

Warnings are printed for targets that needed normalizing, categories absent
from the sample, zero targets and sample categories no target covers.

Examples:
  raking targets check survey.csv --targets population.yaml
  raking targets check survey.csv --target 'age=18-34:0.3,35-54:0.4,55+:0.3' --output json`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteTargetsCheck(rootCtx, cfg, cacheManager); err != nil {
			contract.LogFatal("Cannot check targets", err)
		}
	},
}
