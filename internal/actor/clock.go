package actor

import "time"

// Clock is a best-effort wall clock. Hosts that cannot read the time return
// ok == false, which disables the timeout and elapsed-time reporting.
type Clock interface {
	Now() (t time.Time, ok bool)
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) Now() (time.Time, bool) { return time.Now().UTC(), true }

// NoClock never yields a time.
type NoClock struct{}

func (NoClock) Now() (time.Time, bool) { return time.Time{}, false }

// ClockFunc adapts a function to Clock.
type ClockFunc func() (time.Time, bool)

func (f ClockFunc) Now() (time.Time, bool) { return f() }
