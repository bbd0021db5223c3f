// Package system implements the real wall clock behind the small Clock
// interface internal/errsink depends on, so that package never calls
// time.Now itself and tests can substitute a deterministic clock instead.
package system

import "time"

// Clock is the real-time implementation of errsink.Clock.
type Clock struct{}

// New builds a Clock backed by the system wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
