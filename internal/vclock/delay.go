package vclock

import (
	"time"

	"github.com/roach88/lockstep/internal/poll"
)

// Delay suspends until its clock reaches a deadline.
//
// The deadline is immutable and fixed at construction: Sleep resolves
// now+d when the Delay is created, not at first poll. A Delay never
// registers for resumption — after any Advance on the clock the test
// must poll again to observe completion.
type Delay struct {
	clock    *Clock
	deadline time.Time
}

// Sleep returns a Delay that completes once the clock has advanced by
// at least d from this moment.
func (c *Clock) Sleep(d time.Duration) *Delay {
	return &Delay{clock: c, deadline: c.Now().Add(d)}
}

// SleepUntil returns a Delay with an absolute deadline.
func (c *Clock) SleepUntil(deadline time.Time) *Delay {
	return &Delay{clock: c, deadline: deadline}
}

// Deadline returns the instant the delay completes at.
func (d *Delay) Deadline() time.Time {
	return d.deadline
}

// Elapsed reports whether the clock has reached the deadline.
// The boundary is inclusive: now == deadline counts as elapsed.
func (d *Delay) Elapsed() bool {
	return !d.clock.Now().Before(d.deadline)
}

// Poll reports suspended while now < deadline and completed once
// now >= deadline. Polling is a pure comparison; there is no timer
// wheel because there is no concurrent time source to reconcile with.
func (d *Delay) Poll() poll.Outcome[struct{}] {
	if d.Elapsed() {
		return poll.ReadyNow(struct{}{})
	}
	return poll.Pending[struct{}]()
}
