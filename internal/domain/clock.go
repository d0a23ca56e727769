package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// ReferenceZone is the fixed UTC+2 zone used for fallback timestamps. It never
// observes daylight saving.
var ReferenceZone = time.FixedZone("UTC+2", 2*60*60)

// SetClock swaps the time source for timestamp fallback. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time in ReferenceZone.
func Now() time.Time {
	return clock.Now().In(ReferenceZone)
}
