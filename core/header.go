package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
)

// logRakeHeader prints the input summary and solver settings.
// Headers go to stderr so csv and json output on stdout stay parseable.
func logRakeHeader(cfg *contract.Config, ds *dataset.Dataset, targets []rake.Target) {
	vars := make([]string, len(targets))
	for i, t := range targets {
		vars[i] = t.Variable
	}
	fmt.Fprintf(os.Stderr, "🔎 Input: %s (%d respondents, %d columns)\n", filepath.Base(ds.Name), ds.Len(), len(ds.Header))
	fmt.Fprintf(os.Stderr, "🎯 Targets: %s\n", strings.Join(vars, " → "))
	opts := cfg.Solver
	fmt.Fprintf(os.Stderr, "⚙️  Solver: max-iter %d, tolerance %g, missing %s\n", opts.MaxIter, opts.Tolerance, opts.MissingPolicy)
}

// logCrosstabHeader prints which table is being tabulated.
func logCrosstabHeader(ds *dataset.Dataset, rowVar, colVar string, weighted bool) {
	kind := "unweighted"
	if weighted {
		kind = "weighted"
	}
	fmt.Fprintf(os.Stderr, "🔎 Input: %s (%d respondents)\n", filepath.Base(ds.Name), ds.Len())
	fmt.Fprintf(os.Stderr, "📊 Crosstab: %s by %s (%s)\n", rowVar, colVar, kind)
}
