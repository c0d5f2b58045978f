package utils

import "time"

// Clock is the time source for interval waits and reconnect delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// -----------------------------------------------------------------------------

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
