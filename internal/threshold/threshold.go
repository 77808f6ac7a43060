// Package threshold parses and evaluates pass/fail expressions such as
// "p(95)<3000" or "rate<0.05" against the metrics of a finished run.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FairForge/boutiqueload/internal/metrics"
)

// Comparator defines how to compare an aggregated value against a target.
type Comparator string

const (
	ComparatorLessThan       Comparator = "<"
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorGreaterThan    Comparator = ">"
	ComparatorGreaterOrEqual Comparator = ">="
	ComparatorEqual          Comparator = "=="
	ComparatorNotEqual       Comparator = "!="
)

// ErrInvalidExpression is wrapped by every parse failure.
var ErrInvalidExpression = errors.New("threshold: invalid expression")

var exprPattern = regexp.MustCompile(`^\s*(avg|min|max|med|count|rate|value|p\(\s*([0-9]+(?:\.[0-9]+)?)\s*\))\s*(<=|>=|==|!=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*$`)

// Threshold is one parsed expression bound to a metric name.
type Threshold struct {
	Metric      string
	Source      string
	Aggregation metrics.Aggregation
	Comparator  Comparator
	Target      float64
}

func (t *Threshold) String() string {
	return t.Metric + ": " + t.Source
}

// Parse parses a single expression for metric.
func Parse(metric, expr string) (*Threshold, error) {
	m := exprPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("%w: %s: %q", ErrInvalidExpression, metric, expr)
	}

	agg := metrics.Aggregation{Name: m[1]}
	if strings.HasPrefix(m[1], "p(") {
		p, err := strconv.ParseFloat(m[2], 64)
		if err != nil || p < 0 || p > 100 {
			return nil, fmt.Errorf("%w: %s: percentile out of range in %q", ErrInvalidExpression, metric, expr)
		}
		agg = metrics.Aggregation{Name: metrics.AggPercentile, Percentile: p}
	}

	target, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %q: %v", ErrInvalidExpression, metric, expr, err)
	}

	return &Threshold{
		Metric:      metric,
		Source:      strings.TrimSpace(expr),
		Aggregation: agg,
		Comparator:  Comparator(m[3]),
		Target:      target,
	}, nil
}

// ParseSet parses a metric -> expressions table. The result is ordered by
// metric name, then by expression order within a metric.
func ParseSet(set map[string][]string) ([]*Threshold, error) {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*Threshold
	for _, name := range names {
		if len(set[name]) == 0 {
			return nil, fmt.Errorf("%w: %s: no expressions", ErrInvalidExpression, name)
		}
		for _, expr := range set[name] {
			t, err := Parse(name, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Lookup resolves metric names. *metrics.Registry satisfies it.
type Lookup interface {
	Lookup(name string) (metrics.Metric, error)
}

// ValidateRefs checks that every threshold references a metric known to reg and
// uses an aggregation that metric's kind supports.
func ValidateRefs(thresholds []*Threshold, reg Lookup) error {
	var errs []error
	for _, t := range thresholds {
		m, err := reg.Lookup(t.Metric)
		if err != nil {
			errs = append(errs, fmt.Errorf("threshold %q: %w", t.String(), err))
			continue
		}
		if err := t.Check(m.Kind()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Result captures the evaluation of one threshold.
type Result struct {
	Threshold *Threshold
	Actual    float64
	Passed    bool
	Err       error
}

// Evaluate checks every threshold against the run's metrics. A threshold whose
// metric cannot be resolved or aggregated fails.
func Evaluate(thresholds []*Threshold, reg Lookup, elapsed time.Duration) []Result {
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		res := Result{Threshold: t}
		m, err := reg.Lookup(t.Metric)
		if err == nil {
			res.Actual, err = m.Aggregate(t.Aggregation, elapsed)
		}
		if err != nil {
			res.Err = err
		} else {
			res.Passed = compareValues(res.Actual, t.Target, t.Comparator)
		}
		results = append(results, res)
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	failed := make([]Result, 0)
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// compareValues checks if actual meets target based on comparator.
func compareValues(actual, target float64, comp Comparator) bool {
	switch comp {
	case ComparatorLessThan:
		return actual < target
	case ComparatorLessOrEqual:
		return actual <= target
	case ComparatorGreaterThan:
		return actual > target
	case ComparatorGreaterOrEqual:
		return actual >= target
	case ComparatorEqual:
		return actual == target
	case ComparatorNotEqual:
		return actual != target
	default:
		return false
	}
}

// Check reports whether the threshold's aggregation is valid for a metric of
// the given kind.
func (t *Threshold) Check(kind metrics.Kind) error {
	if !t.Aggregation.Supports(kind) {
		return fmt.Errorf("threshold %q: %s is not valid for %s metric", t.String(), t.Aggregation, kind)
	}
	return nil
}
