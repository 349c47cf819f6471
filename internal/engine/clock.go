package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the simulation's logical clock.
//
// The step counter is the only mutable state; simulation time is derived
// from it, so replaying the same number of steps yields the same times.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the simulation's single-writer design means only one goroutine
// typically calls Next().
type Clock struct {
	start time.Time
	step  time.Duration
	seq   atomic.Int64
}

// NewClock creates a clock at step 0.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{start: start, step: step}
}

// Next advances the clock by one step and returns the new step number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the number of completed steps.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Step returns the step size.
func (c *Clock) Step() time.Duration { return c.step }

// Start returns the simulation start time.
func (c *Clock) Start() time.Time { return c.start }

// Now returns the time at the start of the current step.
func (c *Clock) Now() time.Time {
	return c.start.Add(time.Duration(c.Current()) * c.step)
}

// EventTime returns the time at the end of the current step, when the
// step's transitions are considered to happen.
func (c *Clock) EventTime() time.Time {
	return c.Now().Add(c.step)
}
