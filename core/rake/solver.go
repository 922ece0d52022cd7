package rake

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Default solver settings.
const (
	DefaultMaxIter   = 100
	DefaultTolerance = 0.001
)

// chunkSize fixes the reduction layout so sums do not depend on the worker count.
const chunkSize = 4096

// ErrInvalidOptions is returned for out-of-range solver options.
var ErrInvalidOptions = errors.New("invalid raking options")

// MissingPolicy decides what happens to the share of a target category that
// no respondent belongs to.
type MissingPolicy string

// All missing-category policies supported.
const (
	// RedistributeMissing rescales the variable's observed categories so they
	// absorb the whole population while keeping their declared ratios.
	RedistributeMissing MissingPolicy = "redistribute" // default
	// KeepDeclared leaves the observed categories at their declared shares.
	KeepDeclared MissingPolicy = "keep"
)

// ValidMissingPolicies lists all valid missing-category policies.
var ValidMissingPolicies = map[MissingPolicy]struct{}{
	RedistributeMissing: {},
	KeepDeclared:        {},
}

// Options tunes a raking run. Zero values select the defaults.
type Options struct {
	MaxIter         int
	Tolerance       float64
	MissingPolicy   MissingPolicy
	NormalizeLabels bool
	Workers         int
}

// DefaultOptions returns the standard raking settings.
func DefaultOptions() Options {
	return Options{
		MaxIter:       DefaultMaxIter,
		Tolerance:     DefaultTolerance,
		MissingPolicy: RedistributeMissing,
		Workers:       1,
	}
}

func (o Options) withDefaults() (Options, error) {
	if o.MaxIter < 0 {
		return o, fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidOptions, o.MaxIter)
	}
	if o.Tolerance < 0 || math.IsNaN(o.Tolerance) {
		return o, fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidOptions, o.Tolerance)
	}
	if o.MaxIter == 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MissingPolicy == "" {
		o.MissingPolicy = RedistributeMissing
	}
	if _, ok := ValidMissingPolicies[o.MissingPolicy]; !ok {
		return o, fmt.Errorf("%w: unknown missing policy %q", ErrInvalidOptions, o.MissingPolicy)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o, nil
}

// Solve rakes the table against targets and returns row-aligned weights.
// Only ErrInvalidTargetSpec and ErrInvalidOptions are fatal; every other
// condition is reported as a warning on the result.
func Solve(table Table, targets []Target, opts Options) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	rep := newReporter()
	plans, err := plan(table, targets, opts, rep)
	if err != nil {
		return nil, err
	}

	n := table.Len()
	if n == 0 {
		return &Result{
			Weights:   []float64{},
			Converged: true,
			Warnings:  []Warning{},
			Deltas:    []float64{},
			Marginals: []Marginal{},
		}, nil
	}

	s := &solver{
		weights: make([]float64, n),
		plans:   plans,
		rep:     rep,
		workers: opts.Workers,
	}
	for i := range s.weights {
		s.weights[i] = 1.0
	}

	prev := make([]float64, n)
	converged := false
	iterations := 0
	lastDelta := 0.0
	for i := 0; i < opts.MaxIter; i++ {
		copy(prev, s.weights)
		for _, p := range s.plans {
			s.rescale(p)
		}
		lastDelta = absDiff(s.weights, prev)
		rep.record(lastDelta)
		iterations = i + 1
		if lastDelta < opts.Tolerance {
			converged = true
			break
		}
	}
	if !converged {
		rep.warn(NotConvergedWarning, "", "",
			"raking did not converge after %d iterations (last change %.6g, tolerance %g)", iterations, lastDelta, opts.Tolerance)
	}

	return &Result{
		Weights:    s.weights,
		Converged:  converged,
		Iterations: iterations,
		Warnings:   append([]Warning{}, rep.warnings...),
		Deltas:     rep.deltas,
		Marginals:  s.marginals(),
		Summary:    Summarize(s.weights),
	}, nil
}

// Check resolves targets against the table without raking. Marginals carry
// the effective targets beside the unweighted sample shares, so Weighted
// equals Unweighted.
func Check(table Table, targets []Target, opts Options) (*CheckResult, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	rep := newReporter()
	plans, err := plan(table, targets, opts, rep)
	if err != nil {
		return nil, err
	}

	s := &solver{weights: make([]float64, table.Len()), plans: plans, rep: rep, workers: opts.Workers}
	for i := range s.weights {
		s.weights[i] = 1.0
	}
	return &CheckResult{
		Respondents: table.Len(),
		Marginals:   s.marginals(),
		Warnings:    append([]Warning{}, rep.warnings...),
	}, nil
}

// solver owns the weight vector for the duration of one Solve call.
type solver struct {
	weights []float64
	plans   []*variablePlan
	rep     *reporter
	workers int
}

// rescale applies one variable's pass: all factors come from a single
// snapshot of the category sums.
func (s *solver) rescale(p *variablePlan) {
	sums := s.categorySums(p)
	total := 0.0
	for _, v := range sums {
		total += v
	}

	factors := make([]float64, len(p.labels))
	changed := false
	for c := range factors {
		factors[c] = 1.0
		if c >= len(p.targets) || p.counts[c] == 0 {
			continue
		}
		if total <= 0 || sums[c] <= 0 {
			if p.targets[c] > 0 {
				s.rep.warn(ZeroProportionWarning, p.name, p.labels[c],
					"category %q of %q has zero weighted share; skipped rescaling", p.labels[c], p.name)
			}
			continue
		}
		factors[c] = p.targets[c] / (sums[c] / total)
		changed = true
	}
	if changed {
		s.applyFactors(p, factors)
	}
}

// chunks splits [0, n) into fixed-size ranges.
func chunks(n int) [][2]int {
	out := make([][2]int, 0, n/chunkSize+1)
	for lo := 0; lo < n; lo += chunkSize {
		out = append(out, [2]int{lo, min(lo+chunkSize, n)})
	}
	return out
}

// forEachChunk runs fn over every chunk, concurrently when workers allow.
func (s *solver) forEachChunk(n int, fn func(idx, lo, hi int)) {
	parts := chunks(n)
	if s.workers <= 1 || len(parts) == 1 {
		for i, c := range parts {
			fn(i, c[0], c[1])
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, c := range parts {
		g.Go(func() error {
			fn(i, c[0], c[1])
			return nil
		})
	}
	_ = g.Wait()
}

// categorySums returns the weighted total of each category code.
func (s *solver) categorySums(p *variablePlan) []float64 {
	n := len(s.weights)
	parts := chunks(n)
	partial := make([][]float64, len(parts))
	s.forEachChunk(n, func(idx, lo, hi int) {
		local := make([]float64, len(p.labels))
		for i := lo; i < hi; i++ {
			if code := p.codes[i]; code >= 0 {
				local[code] += s.weights[i]
			}
		}
		partial[idx] = local
	})

	sums := make([]float64, len(p.labels))
	for _, local := range partial {
		for c, v := range local {
			sums[c] += v
		}
	}
	return sums
}

// applyFactors multiplies each respondent's weight by its category factor.
func (s *solver) applyFactors(p *variablePlan, factors []float64) {
	s.forEachChunk(len(s.weights), func(_, lo, hi int) {
		for i := lo; i < hi; i++ {
			if code := p.codes[i]; code >= 0 {
				s.weights[i] *= factors[code]
			}
		}
	})
}

// marginals reports target against achieved shares for every variable.
func (s *solver) marginals() []Marginal {
	var out []Marginal
	for _, p := range s.plans {
		sums := s.categorySums(p)
		total := 0.0
		for _, v := range sums {
			total += v
		}
		for c, label := range p.labels {
			m := Marginal{Variable: p.name, Category: label, Count: p.counts[c]}
			if c < len(p.targets) {
				m.Target = p.targets[c]
			}
			if p.valid > 0 {
				m.Unweighted = float64(p.counts[c]) / float64(p.valid)
			}
			if total > 0 {
				m.Weighted = sums[c] / total
			}
			out = append(out, m)
		}
	}
	return out
}

// absDiff returns the sum of absolute element-wise differences.
func absDiff(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		total += math.Abs(a[i] - b[i])
	}
	return total
}
