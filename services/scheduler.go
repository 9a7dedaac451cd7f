package services

import "time"

// Scheduler abstracts the clock so room timers can be driven deterministically
// in tests. The room actor owns every handle it receives and always stops the
// previous one before arming a replacement.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) TimerHandle
}

type TimerHandle interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

type realScheduler struct{}

func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

func (realScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}
