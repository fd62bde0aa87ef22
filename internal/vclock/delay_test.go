package vclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lockstep/internal/polltest"
)

func testClock() *Clock {
	return NewAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestDelay_SuspendedBeforeDeadline(t *testing.T) {
	clock := testClock()
	d := clock.Sleep(150 * time.Millisecond)

	polltest.Pending(t, d.Poll())

	clock.Advance(149 * time.Millisecond)
	polltest.Pending(t, d.Poll())
}

func TestDelay_DeadlineBoundaryIsInclusive(t *testing.T) {
	clock := testClock()
	d := clock.Sleep(150 * time.Millisecond)

	clock.Advance(150 * time.Millisecond)
	assert.True(t, d.Elapsed())
	polltest.Ready(t, d.Poll())
}

func TestDelay_NoResumptionWithoutAdvance(t *testing.T) {
	clock := testClock()
	d := clock.Sleep(time.Second)

	// However many times it is polled, nothing moves the clock for it.
	for i := 0; i < 5; i++ {
		polltest.Pending(t, d.Poll())
	}

	clock.Advance(time.Second)
	polltest.Ready(t, d.Poll())
}

func TestDelay_CompletedStaysCompleted(t *testing.T) {
	clock := testClock()
	d := clock.Sleep(10 * time.Millisecond)

	clock.Advance(time.Minute)
	polltest.Ready(t, d.Poll())
	polltest.Ready(t, d.Poll())
}

func TestDelay_ZeroDurationCompletesImmediately(t *testing.T) {
	clock := testClock()
	d := clock.Sleep(0)
	polltest.Ready(t, d.Poll())
}

func TestDelay_DeadlineFixedAtConstruction(t *testing.T) {
	clock := testClock()
	start := clock.Now()

	clock.Advance(100 * time.Millisecond)
	d := clock.Sleep(50 * time.Millisecond)

	// Deadline is relative to creation time, not the original epoch.
	assert.Equal(t, start.Add(150*time.Millisecond), d.Deadline())
}

func TestDelay_SleepUntilAbsoluteDeadline(t *testing.T) {
	clock := testClock()
	deadline := clock.Now().Add(time.Hour)
	d := clock.SleepUntil(deadline)

	polltest.Pending(t, d.Poll())
	clock.Advance(time.Hour)
	polltest.Ready(t, d.Poll())
}

func TestDelay_MultipleTimersFireIndependently(t *testing.T) {
	clock := testClock()
	short := clock.Sleep(100 * time.Millisecond)
	long := clock.Sleep(300 * time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	polltest.Ready(t, short.Poll())
	polltest.Pending(t, long.Poll())

	clock.Advance(200 * time.Millisecond)
	polltest.Ready(t, long.Poll())
}
