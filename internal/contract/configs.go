package contract

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/schema"
)

// Default values for configuration.
const (
	DefaultPrecision = 4
	MaxPrecision     = 8
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a raking or crosstab run.
// This struct remains the "final, validated" config.
type Config struct {
	InputPath   string
	InputFormat schema.InputFormat
	Sheet       string
	Delimiter   rune // 0 = sniff from the header line

	TargetsPath   string
	InlineTargets []string

	// Solver is passed straight to rake.Solve
	Solver rake.Options

	WeightColumn string
	Precision    int
	Output       schema.OutputMode
	OutputFile   string
	Width        int // Terminal width override (0 = auto-detect)
	UseColors    bool

	RowVariable    string
	ColumnVariable string
	Normalize      crosstab.Normalize
	Banners        []string
	Questions      []string
	OutputDir      string

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	HistoryBackend   schema.DatabaseBackend
	HistoryDBConnect string // Please use env var as this is plaintext
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	Input            string `mapstructure:"input"`
	Sheet            string `mapstructure:"sheet"`
	Delimiter        string `mapstructure:"delimiter"`
	OutputFile       string `mapstructure:"output-file"`
	Output           string `mapstructure:"output"`
	Precision        int    `mapstructure:"precision"`
	Width            int    `mapstructure:"width"`
	Workers          int    `mapstructure:"workers"`
	Color            string `mapstructure:"color"`
	WeightColumn     string `mapstructure:"weight-column"`
	CacheBackend     string `mapstructure:"cache-backend"`
	CacheDBConnect   string `mapstructure:"cache-db-connect"`
	HistoryBackend   string `mapstructure:"history-backend"`
	HistoryDBConnect string `mapstructure:"history-db-connect"`

	// --- Fields from rakeCmd.Flags() and targetsCmd.Flags() ---
	Targets         string   `mapstructure:"targets"`
	Target          []string `mapstructure:"target"`
	MaxIter         int      `mapstructure:"max-iter"`
	Tolerance       float64  `mapstructure:"tolerance"`
	MissingPolicy   string   `mapstructure:"missing-policy"`
	NormalizeLabels bool     `mapstructure:"normalize-labels"`

	// --- Fields from crosstabCmd.Flags() and bannerCmd.Flags() ---
	Rows      string `mapstructure:"rows"`
	Columns   string `mapstructure:"columns"`
	Normalize string `mapstructure:"normalize"`
	Banner    string `mapstructure:"banner"`
	Questions string `mapstructure:"questions"`
	OutputDir string `mapstructure:"output-dir"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.InlineTargets = slices.Clone(c.InlineTargets)
	clone.Banners = slices.Clone(c.Banners)
	clone.Questions = slices.Clone(c.Questions)
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processInput(cfg, input); err != nil {
		return err
	}
	if err := processSolverOptions(cfg, input); err != nil {
		return err
	}
	if err := processCrosstabOptions(cfg, input); err != nil {
		return err
	}
	return validateBackendConfigs(cfg, input)
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates cache and history backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// --- History Backend Validation ---
	cfg.HistoryBackend = schema.DatabaseBackend(strings.ToLower(input.HistoryBackend))
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = schema.NoneBackend
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.HistoryBackend]; !ok {
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", input.HistoryBackend)
	}
	cfg.HistoryDBConnect = input.HistoryDBConnect
	if err := ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	// Cache and history must not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.HistoryBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		historyDBPath := cfg.HistoryDBConnect
		if historyDBPath == "" {
			historyDBPath = GetHistoryDBFilePath()
		}
		if cacheDBPath == historyDBPath {
			return fmt.Errorf("cache and history storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates output related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.WeightColumn = strings.TrimSpace(input.WeightColumn)
	if cfg.WeightColumn == "" {
		cfg.WeightColumn = schema.DefaultWeightColumn
	}

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Precision < 1 || input.Precision > MaxPrecision {
		return fmt.Errorf("precision must be between 1 and %d (received %d)", MaxPrecision, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("parquet output requires --output-file")
	}

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Solver.Workers = input.Workers
	return nil
}

// processInput resolves the respondent table location and format.
func processInput(cfg *Config, input *ConfigRawInput) error {
	cfg.InputPath = strings.TrimSpace(input.Input)
	cfg.Sheet = input.Sheet

	switch strings.ToLower(filepath.Ext(cfg.InputPath)) {
	case ".xlsx", ".xlsm":
		cfg.InputFormat = schema.XLSXInput
	default:
		cfg.InputFormat = schema.CSVInput
	}

	delim, err := ParseDelimiter(input.Delimiter)
	if err != nil {
		return err
	}
	cfg.Delimiter = delim
	return nil
}

// processSolverOptions validates the raking settings.
func processSolverOptions(cfg *Config, input *ConfigRawInput) error {
	cfg.TargetsPath = strings.TrimSpace(input.Targets)
	cfg.InlineTargets = nil
	for _, t := range input.Target {
		if t = strings.TrimSpace(t); t != "" {
			cfg.InlineTargets = append(cfg.InlineTargets, t)
		}
	}

	if input.MaxIter < 0 {
		return fmt.Errorf("max-iter must be greater than 0 (received %d)", input.MaxIter)
	}
	cfg.Solver.MaxIter = input.MaxIter

	if input.Tolerance < 0 {
		return fmt.Errorf("tolerance must be greater than 0 (received %g)", input.Tolerance)
	}
	cfg.Solver.Tolerance = input.Tolerance

	cfg.Solver.MissingPolicy = rake.MissingPolicy(strings.ToLower(input.MissingPolicy))
	if cfg.Solver.MissingPolicy == "" {
		cfg.Solver.MissingPolicy = rake.RedistributeMissing
	}
	if _, ok := rake.ValidMissingPolicies[cfg.Solver.MissingPolicy]; !ok {
		return fmt.Errorf("invalid missing policy '%s'. must be redistribute, keep", input.MissingPolicy)
	}
	cfg.Solver.NormalizeLabels = input.NormalizeLabels
	return nil
}

// processCrosstabOptions validates the crosstab and banner settings.
func processCrosstabOptions(cfg *Config, input *ConfigRawInput) error {
	cfg.RowVariable = strings.TrimSpace(input.Rows)
	cfg.ColumnVariable = strings.TrimSpace(input.Columns)
	cfg.Banners = splitList(input.Banner)
	cfg.Questions = splitList(input.Questions)
	cfg.OutputDir = strings.TrimSpace(input.OutputDir)
	if cfg.OutputDir == "" {
		cfg.OutputDir = schema.DefaultBannerDir
	}

	cfg.Normalize = crosstab.Normalize(strings.ToLower(input.Normalize))
	if cfg.Normalize == "" {
		cfg.Normalize = crosstab.AllNormalize
	}
	if _, ok := crosstab.ValidNormalizeModes[cfg.Normalize]; !ok {
		return fmt.Errorf("invalid normalize mode '%s'. must be none, index, columns, all", input.Normalize)
	}
	return nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// ParseDelimiter converts a delimiter flag into a rune. An empty value means
// the delimiter is sniffed from the file.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid delimiter '%s'. must be a single character or tab, comma, semicolon, pipe", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid delimiter '%s'", s)
	}
	return r, nil
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Revalidate checks solver and crosstab settings that were changed after
// ProcessAndValidate, such as per-call MCP arguments.
func Revalidate(cfg *Config) error {
	if cfg.InputPath == "" {
		return fmt.Errorf("--input is required")
	}
	if cfg.Solver.MaxIter < 0 {
		return fmt.Errorf("max-iter must be greater than 0 (received %d)", cfg.Solver.MaxIter)
	}
	if cfg.Solver.Tolerance < 0 {
		return fmt.Errorf("tolerance must be greater than 0 (received %g)", cfg.Solver.Tolerance)
	}
	if _, ok := rake.ValidMissingPolicies[cfg.Solver.MissingPolicy]; !ok {
		return fmt.Errorf("invalid missing policy '%s'. must be redistribute, keep", cfg.Solver.MissingPolicy)
	}
	if _, ok := crosstab.ValidNormalizeModes[cfg.Normalize]; !ok {
		return fmt.Errorf("invalid normalize mode '%s'. must be none, index, columns, all", cfg.Normalize)
	}
	switch strings.ToLower(filepath.Ext(cfg.InputPath)) {
	case ".xlsx", ".xlsm":
		cfg.InputFormat = schema.XLSXInput
	default:
		cfg.InputFormat = schema.CSVInput
	}
	return nil
}
