// Package core has core logic for raking, tabulating and reporting survey weights.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/surveykit/raking/core/crosstab"
	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/internal/dataset"
	"github.com/surveykit/raking/internal/outwriter"
	"github.com/surveykit/raking/internal/targets"
)

// ExecutorFunc defines the function signature for executing different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// RakeOutput is everything a raking run produced.
type RakeOutput struct {
	Dataset *dataset.Dataset
	Targets []rake.Target
	Result  *rake.Result
	RunID   string
	Cached  bool
}

// ExecuteRake loads the respondent table, rakes it and writes the result.
// It serves as the main entry point for the 'rake' command.
func ExecuteRake(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	start := time.Now()
	out, err := RunRake(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	contract.LogWarnings(out.Result.Warnings, cfg.UseColors)
	return outwriter.NewOutWriter().WriteRake(out.Dataset, out.Result, cfg, time.Since(start))
}

// RunRake loads inputs and solves, using the weight cache and recording run
// history when the manager provides those stores.
func RunRake(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*RakeOutput, error) {
	ds, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}
	tgts, err := targets.Resolve(cfg.TargetsPath, cfg.InlineTargets)
	if err != nil {
		return nil, err
	}
	return rakeDataset(ctx, cfg, mgr, ds, tgts)
}

func rakeDataset(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager, ds *dataset.Dataset, tgts []rake.Target) (*RakeOutput, error) {
	if !shouldSuppressHeader(ctx) {
		logRakeHeader(cfg, ds, tgts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var weightStore contract.CacheStore
	var historyStore contract.HistoryStore
	if mgr != nil {
		weightStore = mgr.GetWeightStore()
		historyStore = mgr.GetHistoryStore()
	}

	// A run is only tracked once the solve has succeeded, so history never
	// holds a row without an end time.
	startTime := time.Now()
	result, cached, err := cachedSolve(ds, tgts, cfg.Solver, weightStore)
	if err != nil {
		return nil, err
	}
	runID := beginRun(historyStore, cfg, startTime)
	endRun(historyStore, runID, result)

	return &RakeOutput{Dataset: ds, Targets: tgts, Result: result, RunID: runID, Cached: cached}, nil
}

// ExecuteCrosstab tabulates one question against one banner column.
func ExecuteCrosstab(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	tab, err := BuildCrosstab(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteCrosstab(tab, cfg)
}

// BuildCrosstab loads the table, resolves weights and computes the crosstab
// of cfg.RowVariable by cfg.ColumnVariable.
func BuildCrosstab(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (*crosstab.Table, error) {
	if cfg.RowVariable == "" || cfg.ColumnVariable == "" {
		return nil, errors.New("--rows and --columns are required")
	}
	ds, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}
	weights, err := resolveWeights(withSuppressHeader(ctx), cfg, mgr, ds)
	if err != nil {
		return nil, err
	}
	if !shouldSuppressHeader(ctx) {
		logCrosstabHeader(ds, cfg.RowVariable, cfg.ColumnVariable, weights != nil)
	}
	return crosstab.Build(ds, cfg.RowVariable, cfg.ColumnVariable, weights, cfg.Normalize)
}

// ExecuteBanner writes one crosstab CSV per question and banner column into
// the output directory. A failing pair is logged and skipped.
func ExecuteBanner(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	if len(cfg.Banners) == 0 {
		return errors.New("--banner needs at least one column")
	}
	ds, err := loadDataset(cfg)
	if err != nil {
		return err
	}
	weights, err := resolveWeights(withSuppressHeader(ctx), cfg, mgr, ds)
	if err != nil {
		return err
	}

	questions := cfg.Questions
	if len(questions) == 0 {
		questions = defaultQuestions(ds, cfg)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.OutputDir, err)
	}

	written := 0
	for _, q := range questions {
		for _, b := range cfg.Banners {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := writeBannerPair(ds, q, b, weights, cfg)
			if err != nil {
				contract.LogWarn(fmt.Sprintf("Skipping %s x %s", q, b), err)
				continue
			}
			written++
			if !shouldSuppressHeader(ctx) {
				fmt.Printf("📊 %s x %s → %s\n", q, b, path)
			}
		}
	}
	if !shouldSuppressHeader(ctx) {
		fmt.Printf("💾 Wrote %d crosstabs to %s\n", written, cfg.OutputDir)
	}
	return nil
}

// bannerFileName returns <question>_by_<banner>.csv with both names sanitized.
func bannerFileName(question, banner string) string {
	return fmt.Sprintf("%s_by_%s.csv", contract.SanitizeFileName(question, 20), contract.SanitizeFileName(banner, 20))
}

func writeBannerPair(ds *dataset.Dataset, question, banner string, weights []float64, cfg *contract.Config) (string, error) {
	tab, err := crosstab.Build(ds, question, banner, weights, cfg.Normalize)
	if err != nil {
		return "", err
	}
	path := filepath.Join(cfg.OutputDir, bannerFileName(question, banner))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := outwriter.WriteCrosstabCSV(file, tab, cfg.Precision); err != nil {
		_ = file.Close()
		return "", err
	}
	return path, file.Close()
}

// defaultQuestions is every column that is neither a banner nor the weight column.
func defaultQuestions(ds *dataset.Dataset, cfg *contract.Config) []string {
	var out []string
	for _, h := range ds.Header {
		if h == cfg.WeightColumn || slices.Contains(cfg.Banners, h) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// resolveWeights picks the weights for tabulation: the weight column when the
// table has one, a fresh raking run when targets are configured, or nil
// (unweighted counts) with a warning.
func resolveWeights(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager, ds *dataset.Dataset) ([]float64, error) {
	if ds.HasColumn(cfg.WeightColumn) {
		return ds.Floats(cfg.WeightColumn)
	}
	if cfg.TargetsPath != "" || len(cfg.InlineTargets) > 0 {
		tgts, err := targets.Resolve(cfg.TargetsPath, cfg.InlineTargets)
		if err != nil {
			return nil, err
		}
		out, err := rakeDataset(ctx, cfg, mgr, ds, tgts)
		if err != nil {
			return nil, err
		}
		contract.LogWarnings(out.Result.Warnings, cfg.UseColors)
		return out.Result.Weights, nil
	}
	contract.LogWarn("Weight column missing", fmt.Errorf("column %q not found in %s; using unweighted counts", cfg.WeightColumn, ds.Name))
	return nil, nil
}

// ExecuteTargetsCheck validates targets against the table without raking.
func ExecuteTargetsCheck(_ context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	check, err := CheckTargets(cfg)
	if err != nil {
		return err
	}
	contract.LogWarnings(check.Warnings, cfg.UseColors)
	return outwriter.NewOutWriter().WriteTargetsCheck(check, cfg)
}

// CheckTargets loads the table and targets and reports how they line up.
func CheckTargets(cfg *contract.Config) (*rake.CheckResult, error) {
	ds, err := loadDataset(cfg)
	if err != nil {
		return nil, err
	}
	tgts, err := targets.Resolve(cfg.TargetsPath, cfg.InlineTargets)
	if err != nil {
		return nil, err
	}
	return rake.Check(ds, tgts, cfg.Solver)
}

func loadDataset(cfg *contract.Config) (*dataset.Dataset, error) {
	if cfg.InputPath == "" {
		return nil, errors.New("--input is required")
	}
	return dataset.Load(cfg.InputPath, dataset.Options{
		Format:    cfg.InputFormat,
		Sheet:     cfg.Sheet,
		Delimiter: cfg.Delimiter,
	})
}
