package clock

import "time"

// Timer is a single-shot scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the pending callback.
	// It reports false if the callback already ran or was already stopped.
	Stop() bool
}

// TimeSource provides the current time and one-shot timer scheduling.
// Components take a TimeSource instead of calling the time package directly
// so expiry behavior can be driven deterministically in tests.
type TimeSource interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
	// AfterFunc schedules fn to run on its own goroutine once d has
	// elapsed and returns a Timer that can cancel the call.
	AfterFunc(d time.Duration, fn func()) Timer
}

// systemTimeSource delegates to the time package.
type systemTimeSource struct{}

// System returns a TimeSource backed by the real clock.
//
//nolint:ireturn,nolintlint // Returning the interface is the point of the constructor.
func System() TimeSource {
	return systemTimeSource{}
}

// Now returns the current time.
func (systemTimeSource) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (systemTimeSource) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// AfterFunc schedules fn on the real clock.
//
//nolint:ireturn,nolintlint // Timer implementations differ per source.
func (systemTimeSource) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{timer: time.AfterFunc(d, fn)}
}

// systemTimer wraps *time.Timer created by AfterFunc.
type systemTimer struct {
	// timer is the underlying real timer.
	timer *time.Timer
}

// Stop cancels the pending callback.
func (t systemTimer) Stop() bool {
	return t.timer.Stop()
}
