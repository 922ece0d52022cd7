package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/schema"
)

// Status label constants.
const (
	ConvergedValue    = "Converged"     // Converged value
	NotConvergedValue = "Not converged" // Not converged value
)

// Color variables for console output.
var (
	OnTargetColor = color.New(color.FgGreen, color.Bold) // OnTargetColor marks achieved targets.
	CloseColor    = color.New(color.FgYellow)            // CloseColor marks small misses, not bold.
	OffColor      = color.New(color.FgRed, color.Bold)   // OffColor marks real misses.
	InfoColor     = color.New(color.FgCyan)              // InfoColor marks informational warnings.
)

// GetStatusLabel returns the plain convergence label of a run.
func GetStatusLabel(converged bool) string {
	if converged {
		return ConvergedValue
	}
	return NotConvergedValue
}

// GetColorStatusLabel returns the convergence label colored for console output.
func GetColorStatusLabel(converged bool) string {
	if converged {
		return OnTargetColor.Sprint(ConvergedValue)
	}
	return CloseColor.Sprint(NotConvergedValue)
}

// GetColorGapLabel returns a colored text label for console output (table).
// It uses schema.GetGapLabel to determine the string, and then applies the appropriate color.
func GetColorGapLabel(gap float64) string {
	text := schema.GetGapLabel(gap)

	switch text {
	case "On target":
		return OnTargetColor.Sprint(text)
	case "Close":
		return CloseColor.Sprint(text)
	default:
		return OffColor.Sprint(text)
	}
}

// GetColorWarningKind colors a warning kind by how much it affects the weights.
func GetColorWarningKind(kind rake.WarningKind) string {
	switch kind {
	case rake.NotConvergedWarning, rake.ZeroProportionWarning:
		return OffColor.Sprint(string(kind))
	case rake.MissingCategoryWarning, rake.UnmatchedCategoryWarning:
		return CloseColor.Sprint(string(kind))
	default:
		return InfoColor.Sprint(string(kind))
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// LogWarnings prints every solver warning to stderr.
func LogWarnings(warnings []rake.Warning, useColors bool) {
	for _, w := range warnings {
		kind := string(w.Kind)
		if useColors {
			kind = GetColorWarningKind(w.Kind)
		}
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  [%s] %s\n", kind, w.Message)
	}
}

// GetCacheDBFilePath returns the path to the SQLite DB file for weight cache storage.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".raking_cache.db"
	}
	return filepath.Join(homeDir, ".raking_cache.db")
}

// GetHistoryDBFilePath returns the path to the SQLite DB file for run history storage.
func GetHistoryDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".raking_history.db"
	}
	return filepath.Join(homeDir, ".raking_history.db")
}

// TruncateLabel truncates a label to a maximum width with an ellipsis suffix.
// Requires maxWidth > 3 so there is room for the ellipsis and one character.
func TruncateLabel(label string, maxWidth int) string {
	runes := []rune(label)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return label
}

// SanitizeFileName makes a column name safe for use in a file name and
// truncates it to maxLen runes.
func SanitizeFileName(name string, maxLen int) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	name = strings.ReplaceAll(name, " ", "_")
	runes := []rune(name)
	if maxLen > 0 && len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return string(runes)
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
