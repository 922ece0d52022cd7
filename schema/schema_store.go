package schema

import "time"

// RunOutcome is what a finished raking run reports back to the history store.
type RunOutcome struct {
	Respondents int
	Iterations  int
	Converged   bool
	Warnings    int
	EffectiveN  float64
}

// RunRecord represents a row from the raking_runs table.
type RunRecord struct {
	RunID        string
	StartTime    time.Time
	EndTime      *time.Time
	DurationMs   *int32
	InputPath    string
	Respondents  int32
	Iterations   int32
	Converged    bool
	Warnings     int32
	EffectiveN   float64
	ConfigParams *string
}

// MarginalRecord represents a row from the raking_marginals table.
type MarginalRecord struct {
	RunID      string
	Variable   string
	Category   string
	Target     float64
	Unweighted float64
	Weighted   float64
	Count      int32
}
