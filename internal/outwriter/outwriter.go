// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the core logic.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteRake prints a raking result using the configured output format.
func (ow *OutWriter) WriteRake(ds *dataset.Dataset, result *rake.Result, cfg *contract.Config, duration time.Duration) error {
	return WriteRakeResult(ds, result, cfg, duration)
}

// WriteCrosstab prints a crosstab using the configured output format.
func (ow *OutWriter) WriteCrosstab(tab *crosstab.Table, cfg *contract.Config) error {
	return WriteCrosstabResult(tab, cfg)
}

// WriteTargetsCheck prints a targets check using the configured output format.
func (ow *OutWriter) WriteTargetsCheck(check *rake.CheckResult, cfg *contract.Config) error {
	return WriteCheckResult(check, cfg)
}
