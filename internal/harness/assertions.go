package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/qakit/qakit/internal/broker"
	"github.com/qakit/qakit/internal/sqlharness"
)

// evalAssertions checks every assertion and records failures on the result.
func (h *Harness) evalAssertions(ctx context.Context, scenario *Scenario, result *Result) {
	for i := range scenario.Assertions {
		a := &scenario.Assertions[i]
		if err := h.evalAssertion(ctx, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
}

func (h *Harness) evalAssertion(ctx context.Context, a *Assertion, result *Result) error {
	switch a.Type {
	case AssertTraceContains:
		return h.assertTraceContains(a, result)
	case AssertTraceOrder:
		return h.assertTraceOrder(a, result)
	case AssertTraceCount:
		return h.assertTraceCount(a, result)
	case AssertFinalState:
		return h.assertFinalState(ctx, a)
	case AssertRequestCount:
		return h.assertRequestCount(a)
	case AssertMessageCount:
		return h.assertMessageCount(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertTraceContains(a *Assertion, result *Result) error {
	for _, event := range result.Trace {
		if event.Op == a.Op {
			return nil
		}
	}
	return fmt.Errorf("op %q not found in trace %v", a.Op, traceOps(result))
}

// assertTraceOrder checks that a.Ops appear in the trace in the given
// order. Other events may appear between them.
func (h *Harness) assertTraceOrder(a *Assertion, result *Result) error {
	next := 0
	for _, event := range result.Trace {
		if next < len(a.Ops) && event.Op == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return fmt.Errorf("op %q missing or out of order, trace %v", a.Ops[next], traceOps(result))
	}
	return nil
}

func (h *Harness) assertTraceCount(a *Assertion, result *Result) error {
	count := 0
	for _, event := range result.Trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return fmt.Errorf("op %q appeared %d times, expected %d", a.Op, count, a.Count)
	}
	return nil
}

// assertFinalState fetches exactly one row and checks the expected columns.
// Columns not named in expect are ignored.
func (h *Harness) assertFinalState(ctx context.Context, a *Assertion) error {
	row, err := h.db.Row(ctx, a.Table, a.Where)
	if err != nil {
		if errors.Is(err, sqlharness.ErrRowNotFound) || errors.Is(err, sqlharness.ErrMultipleRows) {
			return err
		}
		return fmt.Errorf("failed to query final state: %w", err)
	}

	for column, expected := range a.Expect {
		actual, ok := row[column]
		if !ok {
			return fmt.Errorf("table %s has no column %q", a.Table, column)
		}
		if !valuesEqual(expected, actual) {
			return fmt.Errorf("%s.%s = %v, expected %v", a.Table, column, actual, expected)
		}
	}
	return nil
}

func (h *Harness) assertRequestCount(a *Assertion) error {
	count := h.mock.Count(a.Method, a.Path)
	if count != a.Count {
		return fmt.Errorf("%s %s received %d requests, expected %d", a.Method, a.Path, count, a.Count)
	}
	return nil
}

func (h *Harness) assertMessageCount(a *Assertion) error {
	msgs, err := h.broker.Messages(a.Topic)
	if err != nil {
		// A topic nothing published to doesn't exist; that's zero messages.
		if broker.IsUnknownTopic(err) && a.Count == 0 {
			return nil
		}
		return err
	}
	if len(msgs) != a.Count {
		return fmt.Errorf("topic %q holds %d messages, expected %d", a.Topic, len(msgs), a.Count)
	}
	return nil
}

// traceOps lists the trace's op labels for error messages.
func traceOps(result *Result) []string {
	ops := make([]string, len(result.Trace))
	for i, event := range result.Trace {
		ops[i] = event.Op
	}
	return ops
}

// valuesEqual compares a fixture value against a database value.
// YAML decodes integers as int while drivers return int64, and numeric
// columns may come back as float64, so numbers are compared numerically.
func valuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == actual
	}

	ef, eok := toFloat(expected)
	af, aok := toFloat(actual)
	if eok && aok {
		return ef == af
	}

	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
