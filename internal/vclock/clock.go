// Package vclock provides the virtual time source for the harness:
// a clock that moves only when a test tells it to, and a delay
// primitive that suspends until a deadline on that clock.
//
// Each Clock instance is an independent isolation scope. Tests that
// must not observe each other's time construct their own Clock; there
// is no process-global timeline.
package vclock

import (
	"sync"
	"time"
)

// Clock is a mutable virtual timestamp, advanced only by explicit
// command. It is initialized from real time at construction and never
// moves on its own.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex, although the harness itself is single-threaded by design.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New creates a clock seeded from the current wall-clock time.
//
// The seed only anchors the timeline; all subsequent movement is
// explicit, so tests that compare relative time stay deterministic.
func New() *Clock {
	return &Clock{now: time.Now()}
}

// NewAt creates a clock seeded at an explicit instant. Useful when a
// test needs absolute timestamps to be reproducible.
func NewAt(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current virtual timestamp.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
//
// The clock is monotonic: a negative duration would move it backward
// and is a test-authoring error, so Advance panics rather than
// silently misbehaving.
func (c *Clock) Advance(d time.Duration) {
	if d < 0 {
		panic("vclock: Advance with negative duration")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
