// Package task provides the manual single-step driver: the only
// "scheduler" in the harness, and deliberately not one.
//
// A Task wraps one suspendable operation and exposes a single-step
// Poll. There is no run loop, no wake-up, and no automatic
// re-invocation anywhere: when a poll reports suspended, nothing will
// ever poll again on the test's behalf. The test reacts by injecting
// stimulus and calling Poll once more. This converts "suspend" from a
// scheduler event into an observable return value, which is what makes
// every assertion in the harness deterministic and replayable.
package task

import (
	"io"

	"github.com/roach88/lockstep/internal/poll"
)

// Task drives one operation to completion, one explicit step at a
// time.
type Task[T any] struct {
	op     poll.Op[T]
	done   bool
	result T
	closed bool
}

// Spawn takes ownership of op and returns its driver handle. Nothing
// runs until the first Poll.
func Spawn[T any](op poll.Op[T]) *Task[T] {
	return &Task[T]{op: op}
}

// Poll advances the operation exactly one step and reports the
// outcome. Once the operation completes, its result is cached and
// returned by every later Poll without touching the operation again.
// Polling a closed task panics.
func (t *Task[T]) Poll() poll.Outcome[T] {
	if t.closed {
		panic("task: Poll on closed Task")
	}
	if t.done {
		return poll.ReadyNow(t.result)
	}
	out := t.op.Poll()
	if out.Ready {
		t.done = true
		t.result = out.Value
		t.op = nil
	}
	return out
}

// IsCompleted reports whether a previous Poll observed completion.
func (t *Task[T]) IsCompleted() bool {
	return t.done
}

// Close drops the wrapped operation and runs its cleanup if it has
// any (operations holding resources implement io.Closer). Idempotent.
func (t *Task[T]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	op := t.op
	t.op = nil
	if c, ok := op.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
