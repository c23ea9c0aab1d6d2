// Package clock provides the time source used by presence tracking.
// Everything that reasons about TTLs takes a Clock so tests can pin time.
package clock

import "time"

// Clock returns the current time as Unix epoch seconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

// Now returns the current Unix time in seconds.
func (System) Now() int64 {
	return time.Now().Unix()
}

// Func adapts a plain function to the Clock interface.
type Func func() int64

// Now calls f.
func (f Func) Now() int64 {
	return f()
}
