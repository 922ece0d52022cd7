package rake

import (
	"fmt"
	"math"
)

// WarningKind classifies a non-fatal condition raised while raking.
type WarningKind string

// All warning kinds raised by the solver.
const (
	TargetNormalizedWarning  WarningKind = "target_normalized"
	MissingCategoryWarning   WarningKind = "missing_category"
	ZeroProportionWarning    WarningKind = "zero_proportion"
	UnmatchedCategoryWarning WarningKind = "unmatched_category"
	NotConvergedWarning      WarningKind = "not_converged"
)

// Warning is a single distinct issue surfaced alongside a successful result.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Variable string      `json:"variable,omitempty"`
	Category string      `json:"category,omitempty"`
	Message  string      `json:"message"`
}

// String returns the warning message.
func (w Warning) String() string {
	return w.Message
}

// Marginal compares a category's target with what the weights achieve.
type Marginal struct {
	Variable   string  `json:"variable"`
	Category   string  `json:"category"`
	Target     float64 `json:"target"`
	Unweighted float64 `json:"unweighted"`
	Weighted   float64 `json:"weighted"`
	Count      int     `json:"count"`
}

// Gap returns the absolute difference between the achieved and target share.
func (m Marginal) Gap() float64 {
	return math.Abs(m.Weighted - m.Target)
}

// WeightSummary holds distribution statistics for a weight vector.
type WeightSummary struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Sum        float64 `json:"sum"`
	EffectiveN float64 `json:"effective_n"` // Kish effective sample size
	DesignEff  float64 `json:"design_effect"`
	Efficiency float64 `json:"efficiency"` // EffectiveN / N
}

// Result is the outcome of a raking run.
type Result struct {
	Weights    []float64     `json:"weights"`
	Converged  bool          `json:"converged"`
	Iterations int           `json:"iterations"`
	Warnings   []Warning     `json:"warnings"`
	Deltas     []float64     `json:"deltas"`
	Marginals  []Marginal    `json:"marginals"`
	Summary    WeightSummary `json:"summary"`
}

// CheckResult describes how targets line up with a table before raking.
type CheckResult struct {
	Respondents int        `json:"respondents"`
	Marginals   []Marginal `json:"marginals"`
	Warnings    []Warning  `json:"warnings"`
}

// Messages returns the warning strings in the order they were raised.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Message
	}
	return out
}

// HasWarning reports whether a warning of the given kind was raised.
func (r *Result) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// reporter collects deduplicated warnings and per-iteration deltas.
type reporter struct {
	warnings []Warning
	seen     map[string]struct{}
	deltas   []float64
}

func newReporter() *reporter {
	return &reporter{seen: make(map[string]struct{})}
}

// warn records a warning once per (kind, variable, category).
func (r *reporter) warn(kind WarningKind, variable, category, format string, args ...any) {
	key := string(kind) + "\x00" + variable + "\x00" + category
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.warnings = append(r.warnings, Warning{
		Kind:     kind,
		Variable: variable,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *reporter) record(delta float64) {
	r.deltas = append(r.deltas, delta)
}

// Summarize computes distribution statistics for a weight vector.
func Summarize(weights []float64) WeightSummary {
	n := len(weights)
	if n == 0 {
		return WeightSummary{}
	}
	s := WeightSummary{Min: math.Inf(1), Max: math.Inf(-1)}
	sumSq := 0.0
	for _, w := range weights {
		s.Sum += w
		sumSq += w * w
		s.Min = math.Min(s.Min, w)
		s.Max = math.Max(s.Max, w)
	}
	s.Mean = s.Sum / float64(n)
	if sumSq > 0 {
		s.EffectiveN = s.Sum * s.Sum / sumSq
		s.Efficiency = s.EffectiveN / float64(n)
		s.DesignEff = float64(n) / s.EffectiveN
	}
	return s
}
