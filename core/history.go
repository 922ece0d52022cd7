package core

import (
	"fmt"
	"time"

	"github.com/surveykit/raking/core/rake"
	"github.com/surveykit/raking/internal/contract"
	"github.com/surveykit/raking/schema"
)

// beginRun starts history tracking. An empty ID means tracking is off.
func beginRun(store contract.HistoryStore, cfg *contract.Config, startTime time.Time) string {
	if store == nil {
		return ""
	}
	configParams := map[string]any{
		"targets":          cfg.TargetsPath,
		"inline_targets":   cfg.InlineTargets,
		"max_iter":         cfg.Solver.MaxIter,
		"tolerance":        cfg.Solver.Tolerance,
		"missing_policy":   string(cfg.Solver.MissingPolicy),
		"normalize_labels": cfg.Solver.NormalizeLabels,
		"workers":          cfg.Solver.Workers,
	}
	runID, err := store.BeginRun(startTime, cfg.InputPath, configParams)
	if err != nil {
		contract.LogWarn("Run tracking initialization failed", err)
		return ""
	}
	return runID
}

// endRun records the outcome and marginals of a tracked run.
func endRun(store contract.HistoryStore, runID string, result *rake.Result) {
	if store == nil || runID == "" {
		return
	}
	outcome := schema.RunOutcome{
		Respondents: len(result.Weights),
		Iterations:  result.Iterations,
		Converged:   result.Converged,
		Warnings:    len(result.Warnings),
		EffectiveN:  result.Summary.EffectiveN,
	}
	if err := store.EndRun(runID, time.Now(), outcome); err != nil {
		logTrackingError("EndRun", runID, err)
	}
	if err := store.RecordMarginals(runID, toMarginalRecords(runID, result.Marginals)); err != nil {
		logTrackingError("RecordMarginals", runID, err)
	}
}

func toMarginalRecords(runID string, marginals []rake.Marginal) []schema.MarginalRecord {
	out := make([]schema.MarginalRecord, len(marginals))
	for i, m := range marginals {
		out[i] = schema.MarginalRecord{
			RunID:      runID,
			Variable:   m.Variable,
			Category:   m.Category,
			Target:     m.Target,
			Unweighted: m.Unweighted,
			Weighted:   m.Weighted,
			Count:      int32(m.Count),
		}
	}
	return out
}

// logTrackingError logs history errors to stderr without failing the run.
func logTrackingError(operation, runID string, err error) {
	contract.LogWarn(fmt.Sprintf("Run tracking failed for %s on %s", operation, runID), err)
}
