package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Details  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	for _, d := range e.Details {
		fmt.Fprintf(&buf, "  %s\n", d)
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string

	// Rerun runs the scenario again from scratch and returns its report.
	Rerun func() ([]metrics.Entry, error)
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertReportValue:
		return assertReportValue(result, a)
	case AssertReportKeyCount:
		return assertReportKeyCount(actx, a)
	case AssertMeasureTotal:
		return assertMeasureTotal(actx, a)
	case AssertReproducible:
		return assertReproducible(result, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func withinTolerance(got, want, tol float64) bool {
	if tol == 0 {
		return got == want
	}
	return math.Abs(got-want) <= tol
}

// assertReportValue checks one key's value.
func assertReportValue(result *Result, a Assertion) error {
	got, ok := result.Value(a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertReportValue,
			Expected: fmt.Sprintf("key %s = %v", a.Key, *a.Value),
			Actual:   "key not in report",
		}
	}
	if !withinTolerance(got, *a.Value, a.Tolerance) {
		return &AssertionError{
			Type:     AssertReportValue,
			Expected: fmt.Sprintf("key %s = %v (tolerance %v)", a.Key, *a.Value, a.Tolerance),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func filterOf(a Assertion) store.ReportFilter {
	return store.ReportFilter{Disease: a.Disease, Measure: a.Measure, Match: a.Match}
}

// assertReportKeyCount counts the stored keys matching the filter.
func assertReportKeyCount(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Store.ReadReport(actx.Ctx, actx.RunID, filterOf(a))
	if err != nil {
		return fmt.Errorf("report_key_count: %w", err)
	}
	if len(entries) != *a.Count {
		return &AssertionError{
			Type:     AssertReportKeyCount,
			Expected: fmt.Sprintf("%d keys matching %+v", *a.Count, filterOf(a)),
			Actual:   fmt.Sprintf("%d keys", len(entries)),
		}
	}
	return nil
}

// assertMeasureTotal sums the stored values matching the filter.
func assertMeasureTotal(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Store.ReadReport(actx.Ctx, actx.RunID, filterOf(a))
	if err != nil {
		return fmt.Errorf("measure_total: %w", err)
	}
	if len(entries) == 0 {
		return &AssertionError{
			Type:     AssertMeasureTotal,
			Expected: fmt.Sprintf("%s %s total %v", a.Disease, a.Measure, *a.Value),
			Actual:   "no matching keys",
		}
	}
	var total float64
	for _, e := range entries {
		total += e.Value
	}
	if !withinTolerance(total, *a.Value, a.Tolerance) {
		return &AssertionError{
			Type:     AssertMeasureTotal,
			Expected: fmt.Sprintf("%s %s total %v (tolerance %v)", a.Disease, a.Measure, *a.Value, a.Tolerance),
			Actual:   fmt.Sprintf("%v over %d keys", total, len(entries)),
		}
	}
	return nil
}

// assertReproducible runs the scenario again and requires every value to
// match the stored report bit for bit.
func assertReproducible(result *Result, actx *AssertionContext) error {
	if actx.Rerun == nil {
		return fmt.Errorf("reproducible: no rerun available")
	}
	replayed, err := actx.Rerun()
	if err != nil {
		return fmt.Errorf("reproducible: rerun: %w", err)
	}
	mismatches := store.CompareReports(result.Report, replayed)
	if len(mismatches) == 0 {
		return nil
	}
	details := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		details = append(details, m.String())
	}
	return &AssertionError{
		Type:     AssertReproducible,
		Expected: "identical report on rerun",
		Actual:   fmt.Sprintf("%d differing keys", len(mismatches)),
		Details:  details,
	}
}
