package engine

import "time"

// Scheduler defers work without blocking the caller. The engine uses it for
// settlement delays and deferred-assignment retries. Callbacks take the
// conversation lock themselves, so implementations must not run them on the
// scheduling goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// TimerScheduler schedules on the runtime timer heap.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}
