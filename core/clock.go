package core

import "time"

// Clock abstracts monotonic time and delays so the homing routine and the
// reversal self-test can run against a fake clock in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the real wall clock. The time package is available
// under TinyGo, so the same implementation serves host tests and hardware
// targets.
func SystemClock() Clock {
	return systemClock{}
}
