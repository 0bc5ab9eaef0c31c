package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/butler/internal/conflict"
	"github.com/roach88/butler/internal/store"
)

// AssertionContext provides what assertions read from.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Remote *scriptedRemote
	Result *Result
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Calls    []Call
}

// Error implements the error interface. Remote calls are listed for
// remote_calls failures, where they are the useful context.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nRemote calls:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s %s %v\n", i+1, c.Method, c.Path, c.Hashes)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertOverride:
		return assertOverride(a, actx)
	case AssertNoOverride:
		return assertNoOverride(a, actx)
	case AssertMembership:
		return assertMembership(a, actx)
	case AssertRemoteCalls:
		return assertRemoteCalls(a, actx)
	case AssertAuditCount:
		return assertAuditCount(a, actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func overrideKey(a Assertion) conflict.Key {
	return conflict.Key{AssetHash: a.Asset, Dimension: a.Dimension, DimensionKey: a.Key}
}

// assertOverride checks the winner recorded for a key and, when given,
// its rating.
func assertOverride(a Assertion, actx *AssertionContext) error {
	o, err := actx.Store.GetOverride(actx.Ctx, overrideKey(a))
	if err != nil {
		return fmt.Errorf("read override: %w", err)
	}
	expected := fmt.Sprintf("override on %s/%s%s won by %s", a.Asset, a.Dimension, keySuffix(a.Key), a.Rule)
	if o == nil {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: "no override"}
	}
	if o.RuleID != a.Rule {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: "won by " + o.RuleID}
	}
	if a.Rating != "" {
		got := "null"
		if o.Rating != nil {
			got = o.Rating.String()
		}
		if got != a.Rating {
			return &AssertionError{Type: a.Type, Expected: expected + " with rating " + a.Rating, Actual: "rating " + got}
		}
	}
	return nil
}

func assertNoOverride(a Assertion, actx *AssertionContext) error {
	o, err := actx.Store.GetOverride(actx.Ctx, overrideKey(a))
	if err != nil {
		return fmt.Errorf("read override: %w", err)
	}
	if o != nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("no override on %s/%s%s", a.Asset, a.Dimension, keySuffix(a.Key)),
			Actual:   "won by " + o.RuleID,
		}
	}
	return nil
}

func assertMembership(a Assertion, actx *AssertionContext) error {
	want := slices.Sorted(slices.Values(a.Services))
	got := actx.Remote.Membership(a.Asset)
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s in %v", a.Asset, want),
			Actual:   fmt.Sprintf("in %v", got),
		}
	}
	return nil
}

// assertRemoteCalls counts requests to Path, optionally only those
// carrying Asset.
func assertRemoteCalls(a Assertion, actx *AssertionContext) error {
	n := 0
	for _, c := range actx.Result.Calls {
		if c.Path != a.Path {
			continue
		}
		if a.Asset != "" && !slices.Contains(c.Hashes, a.Asset) {
			continue
		}
		n++
	}
	if n != a.Count {
		expected := fmt.Sprintf("%d call(s) to %s", a.Count, a.Path)
		if a.Asset != "" {
			expected += " carrying " + a.Asset
		}
		return &AssertionError{Type: a.Type, Expected: expected, Actual: fmt.Sprintf("%d", n), Calls: actx.Result.Calls}
	}
	return nil
}

// assertAuditCount counts audit rows of Rule across every run, optionally
// filtered by Status.
func assertAuditCount(a Assertion, actx *AssertionContext) error {
	total := 0
	for _, rr := range actx.Result.ruleResults(a.Rule) {
		if rr.ExecutionID == "" {
			continue
		}
		n, err := actx.Store.CountFileActions(actx.Ctx, rr.ExecutionID, a.Status)
		if err != nil {
			return err
		}
		total += n
	}
	if total != a.Count {
		status := a.Status
		if status == "" {
			status = "any"
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d audit row(s) with status %s for %s", a.Count, status, a.Rule),
			Actual:   fmt.Sprintf("%d", total),
		}
	}
	return nil
}

func keySuffix(key string) string {
	if key == "" {
		return ""
	}
	return "/" + key
}
