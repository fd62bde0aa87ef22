// Package polltest provides unwrap helpers over the two-axis step
// outcome (suspended vs completed, ok vs error) so tests read as a
// sequence of expectations instead of manual branching.
package polltest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/poll"
)

// Ready asserts the outcome is completed and returns its value.
func Ready[T any](t testing.TB, o poll.Outcome[T]) T {
	t.Helper()
	require.True(t, o.Ready, "expected completed, got suspended")
	return o.Value
}

// Pending asserts the outcome is still suspended.
func Pending[T any](t testing.TB, o poll.Outcome[T]) {
	t.Helper()
	require.False(t, o.Ready, "expected suspended, got %s", o)
}

// ReadyEq asserts the outcome is completed with exactly want.
func ReadyEq[T any](t testing.TB, o poll.Outcome[T], want T) {
	t.Helper()
	got := Ready(t, o)
	require.Equal(t, want, got)
}

// ReadyErr asserts the outcome is a completed error result and
// returns the error for further inspection.
func ReadyErr(t testing.TB, o poll.Outcome[error]) error {
	t.Helper()
	err := Ready(t, o)
	require.Error(t, err)
	return err
}

// ReadyOK asserts the outcome is a completed nil-error result.
func ReadyOK(t testing.TB, o poll.Outcome[error]) {
	t.Helper()
	require.NoError(t, Ready(t, o))
}
