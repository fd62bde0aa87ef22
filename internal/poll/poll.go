// Package poll defines the step-outcome vocabulary shared by every
// harness primitive.
//
// An operation in this harness never blocks and never registers for a
// wake-up. Each call to Poll advances it exactly one step and reports
// either "still suspended" or "completed with a value". Resumption is
// nothing more than calling Poll again after the test has injected new
// stimulus (advanced the clock, pushed channel data, scripted stream
// bytes, closed a handle). This makes every suspension observable and
// every test run replayable.
package poll

import "fmt"

// Outcome is the two-valued result of polling an operation once:
// suspended (pending) or completed (ready) with a value.
type Outcome[T any] struct {
	// Ready is true once the operation has completed.
	Ready bool

	// Value carries the completion result. It is meaningful only
	// when Ready is true.
	Value T
}

// Pending returns a suspended outcome.
func Pending[T any]() Outcome[T] {
	return Outcome[T]{}
}

// ReadyNow returns a completed outcome carrying v.
func ReadyNow[T any](v T) Outcome[T] {
	return Outcome[T]{Ready: true, Value: v}
}

// IsPending reports whether the operation is still suspended.
func (o Outcome[T]) IsPending() bool {
	return !o.Ready
}

// String renders the outcome for diagnostics.
func (o Outcome[T]) String() string {
	if !o.Ready {
		return "suspended"
	}
	return fmt.Sprintf("completed(%v)", o.Value)
}

// Op is a single suspendable operation driven by explicit polling.
//
// Implementations must be non-blocking: Poll inspects shared state,
// possibly mutates it, and returns. No implementation may schedule an
// automatic re-poll; the caller owns all progress.
type Op[T any] interface {
	Poll() Outcome[T]
}

// Func adapts a closure to the Op interface.
type Func[T any] func() Outcome[T]

// Poll calls the closure.
func (f Func[T]) Poll() Outcome[T] {
	return f()
}
