package testutil

import (
	"time"

	"github.com/roach88/cvdsim/internal/engine"
)

// Epoch is the start time used by tests.
var Epoch = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// Day and Week are common step sizes.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// NewClock returns a weekly clock at Epoch.
//
// Each call returns an independent clock, so the same scenario can run
// several times with identical step times.
func NewClock() *engine.Clock {
	return engine.NewClock(Epoch, Week)
}
