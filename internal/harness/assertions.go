package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/lockstep/internal/trace"
)

// AssertionError is returned when a trace assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		if event.Target != "" {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Kind, event.Target)
		} else {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Kind)
		}
	}

	return buf.String()
}

// matchEvent reports whether an event matches a kind/target filter.
// An empty filter field matches anything.
func matchEvent(ev trace.Event, kind, target string) bool {
	if kind != "" && ev.Kind != kind {
		return false
	}
	if target != "" && ev.Target != target {
		return false
	}
	return true
}

// refString renders a kind/target filter for failure messages.
func refString(kind, target string) string {
	switch {
	case kind != "" && target != "":
		return kind + " on " + target
	case kind != "":
		return kind
	default:
		return "any event on " + target
	}
}

// assertTraceContains checks that at least one event matches the
// assertion's kind/target filter.
func assertTraceContains(events []trace.Event, assertion Assertion) error {
	for _, event := range events {
		if matchEvent(event, assertion.Kind, assertion.Target) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: refString(assertion.Kind, assertion.Target),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceOrder checks that the first occurrence of each sequence
// ref appears in the listed order. Refs don't need to be consecutive;
// intervening events are allowed.
func assertTraceOrder(events []trace.Event, assertion Assertion) error {
	positions := make([]int, len(assertion.Sequence))

	for i, ref := range assertion.Sequence {
		for j, event := range events {
			if matchEvent(event, ref.Kind, ref.Target) {
				positions[i] = j + 1 // 1-indexed for readability
				break
			}
		}
		if positions[i] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all sequence refs present (%d refs)", len(assertion.Sequence)),
				Actual:   fmt.Sprintf("missing: %s", refString(ref.Kind, ref.Target)),
				Trace:    events,
			}
		}
	}

	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			prev := assertion.Sequence[i-1]
			curr := assertion.Sequence[i]
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("%s before %s", refString(prev.Kind, prev.Target), refString(curr.Kind, curr.Target)),
				Actual: fmt.Sprintf("%s (pos %d) appears after %s (pos %d)",
					refString(prev.Kind, prev.Target), positions[i-1],
					refString(curr.Kind, curr.Target), positions[i]),
				Trace: events,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match the filter.
func assertTraceCount(events []trace.Event, assertion Assertion) error {
	count := 0
	for _, event := range events {
		if matchEvent(event, assertion.Kind, assertion.Target) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, refString(assertion.Kind, assertion.Target)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}

	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
