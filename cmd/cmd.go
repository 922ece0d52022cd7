// Package cmd defines the command-line interface for raking.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(rakeCmd)
	rootCmd.AddCommand(crosstabCmd)
	rootCmd.AddCommand(bannerCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)

	// Add the targets subcommands to the parent targets command
	targetsCmd.AddCommand(targetsCheckCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the history subcommands to the parent history command
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper.
	// Target and solver flags are persistent because rake, crosstab, banner
	// and targets check all read them.
	rootCmd.PersistentFlags().StringP("input", "i", "", "Respondent table (.csv or .xlsx)")
	rootCmd.PersistentFlags().String("sheet", "", "Worksheet to read from an .xlsx input (default: first sheet)")
	rootCmd.PersistentFlags().String("delimiter", "", "CSV delimiter: a single character or tab, comma, semicolon, pipe (default: sniffed)")
	rootCmd.PersistentFlags().StringP("targets", "t", "", "Target file in YAML or JSON")
	rootCmd.PersistentFlags().StringArray("target", nil, "Inline target such as 'gender=M:0.49,F:0.51' (repeatable)")
	rootCmd.PersistentFlags().Int("max-iter", rake.DefaultMaxIter, "Maximum raking iterations")
	rootCmd.PersistentFlags().Float64("tolerance", rake.DefaultTolerance, "Convergence threshold on the total weight change per iteration")
	rootCmd.PersistentFlags().String("missing-policy", string(rake.RedistributeMissing), "Targets absent from the sample: redistribute or keep")
	rootCmd.PersistentFlags().Bool("normalize-labels", false, "Match category labels case-insensitively after Unicode normalization")
	rootCmd.PersistentFlags().String("weight-column", schema.DefaultWeightColumn, "Name of the weight column read or written")
	rootCmd.PersistentFlags().String("normalize", string(crosstab.AllNormalize), "Crosstab percentages: none or index or columns or all")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().StringP("output-file", "o", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Weight cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("history-backend", "", "Run history backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("history-db-connect", "", "Database connection string for run history (must differ from cache-db-connect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of crosstabCmd to Viper
	crosstabCmd.Flags().String("rows", "", "Column shown as table rows (the question)")
	crosstabCmd.Flags().String("columns", "", "Column shown as table columns (the banner)")
	if err := viper.BindPFlags(crosstabCmd.Flags()); err != nil {
		contract.LogFatal("Error binding crosstab flags", err)
	}

	// Bind all flags of bannerCmd to Viper
	bannerCmd.Flags().String("banner", "", "Comma-separated banner columns")
	bannerCmd.Flags().String("questions", "", "Comma-separated question columns (default: every other column)")
	bannerCmd.Flags().String("output-dir", schema.DefaultBannerDir, "Directory the crosstab CSV files are written to")
	if err := viper.BindPFlags(bannerCmd.Flags()); err != nil {
		contract.LogFatal("Error binding banner flags", err)
	}

	// Bind all flags of historyMigrateCmd to Viper
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(historyMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history migrate flags", err)
	}
}
