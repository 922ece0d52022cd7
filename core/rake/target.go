package rake

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SumTolerance is how far a variable's proportions may drift from 1.0 before
// they are rescaled.
const SumTolerance = 0.01

// ErrInvalidTargetSpec is returned when targets cannot be applied to a table.
var ErrInvalidTargetSpec = errors.New("invalid target spec")

// CategoryTarget is the population share of one category.
type CategoryTarget struct {
	Category   string  `json:"category" yaml:"category"`
	Proportion float64 `json:"proportion" yaml:"proportion"`
}

// Target is the marginal distribution declared for one variable.
// Variables are processed in the order they are declared.
type Target struct {
	Variable   string           `json:"variable" yaml:"variable"`
	Categories []CategoryTarget `json:"categories" yaml:"categories"`
}

// Sum returns the total of the declared proportions.
func (t Target) Sum() float64 {
	total := 0.0
	for _, c := range t.Categories {
		total += c.Proportion
	}
	return total
}

// Proportion returns the declared share of a category.
func (t Target) Proportion(category string) (float64, bool) {
	for _, c := range t.Categories {
		if c.Category == category {
			return c.Proportion, true
		}
	}
	return 0, false
}

// NormalizeTargets validates targets and rescales any variable whose
// proportions do not sum to 1.0 within SumTolerance. Input is not modified.
func NormalizeTargets(targets []Target) ([]Target, []Warning, error) {
	rep := newReporter()
	out, err := normalizeTargets(targets, nil, rep)
	if err != nil {
		return nil, nil, err
	}
	return out, rep.warnings, nil
}

// labeler canonicalizes category labels when label normalization is enabled.
type labeler struct {
	fold *cases.Caser
}

func newLabeler(enabled bool) *labeler {
	if !enabled {
		return &labeler{}
	}
	c := cases.Fold()
	return &labeler{fold: &c}
}

func (l *labeler) label(s string) string {
	if l == nil || l.fold == nil {
		return s
	}
	return l.fold.String(norm.NFKC.String(strings.TrimSpace(s)))
}

// normalizeTargets checks structure and normalizes sums in declared order.
func normalizeTargets(targets []Target, lb *labeler, rep *reporter) ([]Target, error) {
	seenVars := make(map[string]struct{}, len(targets))
	out := make([]Target, 0, len(targets))

	for i, t := range targets {
		name := strings.TrimSpace(t.Variable)
		if name == "" {
			return nil, fmt.Errorf("%w: target #%d has no variable name", ErrInvalidTargetSpec, i+1)
		}
		if _, dup := seenVars[name]; dup {
			return nil, fmt.Errorf("%w: variable %q declared more than once", ErrInvalidTargetSpec, name)
		}
		seenVars[name] = struct{}{}

		if len(t.Categories) == 0 {
			return nil, fmt.Errorf("%w: variable %q has no categories", ErrInvalidTargetSpec, name)
		}

		seenCats := make(map[string]struct{}, len(t.Categories))
		cats := make([]CategoryTarget, len(t.Categories))
		total := 0.0
		for j, c := range t.Categories {
			label := lb.label(c.Category)
			if _, dup := seenCats[label]; dup {
				return nil, fmt.Errorf("%w: variable %q declares category %q more than once", ErrInvalidTargetSpec, name, label)
			}
			seenCats[label] = struct{}{}
			if math.IsNaN(c.Proportion) || math.IsInf(c.Proportion, 0) || c.Proportion < 0 {
				return nil, fmt.Errorf("%w: variable %q category %q has invalid proportion %v", ErrInvalidTargetSpec, name, label, c.Proportion)
			}
			cats[j] = CategoryTarget{Category: label, Proportion: c.Proportion}
			total += c.Proportion
		}
		if total <= 0 {
			return nil, fmt.Errorf("%w: proportions for variable %q sum to %v", ErrInvalidTargetSpec, name, total)
		}

		if math.Abs(total-1.0) > SumTolerance {
			for j := range cats {
				cats[j].Proportion /= total
			}
			rep.warn(TargetNormalizedWarning, name, "",
				"target proportions for %q sum to %.4g, not 1.0; normalized", name, total)
		}
		out = append(out, Target{Variable: name, Categories: cats})
	}
	return out, nil
}

// variablePlan is the solver's precomputed view of one target variable.
// Codes index into labels; the first len(targets) labels carry a target and
// the rest are sample categories without one. Missing cells have code -1.
type variablePlan struct {
	name    string
	codes   []int32
	labels  []string
	targets []float64
	counts  []int
	valid   int // respondents with a non-missing value
}

// plan resolves targets against the table and builds per-variable category codes.
func plan(table Table, targets []Target, opts Options, rep *reporter) ([]*variablePlan, error) {
	lb := newLabeler(opts.NormalizeLabels)
	normalized, err := normalizeTargets(targets, lb, rep)
	if err != nil {
		return nil, err
	}

	n := table.Len()
	plans := make([]*variablePlan, 0, len(normalized))
	for _, t := range normalized {
		column, ok := table.Column(t.Variable)
		if !ok {
			return nil, fmt.Errorf("%w: column %q does not exist in the respondent table", ErrInvalidTargetSpec, t.Variable)
		}
		if len(column) != n {
			return nil, fmt.Errorf("%w: column %q has %d values, table has %d rows", ErrInvalidTargetSpec, t.Variable, len(column), n)
		}
		plans = append(plans, buildPlan(t, column, lb, opts.MissingPolicy, rep))
	}
	return plans, nil
}

func buildPlan(t Target, column []string, lb *labeler, policy MissingPolicy, rep *reporter) *variablePlan {
	p := &variablePlan{
		name:    t.Variable,
		codes:   make([]int32, len(column)),
		labels:  make([]string, 0, len(t.Categories)),
		targets: make([]float64, 0, len(t.Categories)),
	}
	index := make(map[string]int32, len(t.Categories))
	for _, c := range t.Categories {
		index[c.Category] = int32(len(p.labels))
		p.labels = append(p.labels, c.Category)
		p.targets = append(p.targets, c.Proportion)
	}

	// Category labels are decided once here; the solver only sees codes.
	canonical := make([]string, len(column))
	for i, v := range column {
		if isMissing(v) {
			canonical[i] = ""
			continue
		}
		canonical[i] = lb.label(v)
	}
	for _, v := range presenceSet(canonical) {
		if _, ok := index[v]; ok {
			continue
		}
		index[v] = int32(len(p.labels))
		p.labels = append(p.labels, v)
		rep.warn(UnmatchedCategoryWarning, t.Variable, v,
			"category %q in sample column %q has no target; its weights are not adjusted by this variable and the run may not converge", v, t.Variable)
	}

	p.counts = make([]int, len(p.labels))
	for i, v := range canonical {
		if v == "" {
			p.codes[i] = -1
			continue
		}
		code := index[v]
		p.codes[i] = code
		p.counts[code]++
		p.valid++
	}

	presentShare := 0.0
	missing := false
	for c := range p.targets {
		if p.counts[c] == 0 {
			missing = true
			rep.warn(MissingCategoryWarning, t.Variable, p.labels[c],
				"category %q in targets is missing from sample column %q", p.labels[c], t.Variable)
			continue
		}
		presentShare += p.targets[c]
	}
	if missing && policy == RedistributeMissing && presentShare > 0 {
		for c := range p.targets {
			if p.counts[c] > 0 {
				p.targets[c] /= presentShare
			} else {
				p.targets[c] = 0
			}
		}
	}
	return p
}
