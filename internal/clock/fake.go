package clock

import (
	"sync"
	"time"
)

// Fake is a TimeSource that moves only when Advance is called.
// Due callbacks run synchronously on the advancing goroutine, earliest
// deadline first, so tests observe expiry effects without real sleeps.
type Fake struct {
	// mu guards now and timers.
	mu sync.Mutex
	// now is the current fake time.
	now time.Time
	// timers holds the pending fake timers.
	timers []*fakeTimer
}

// NewFake returns a Fake positioned at a fixed arbitrary instant.
func NewFake() *Fake {
	return &Fake{
		now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

// Since returns the fake time elapsed since t.
func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// AfterFunc schedules fn to run once the fake clock has advanced by d.
//
//nolint:ireturn,nolintlint // Timer implementations differ per source.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{
		source: f,
		at:     f.now.Add(d),
		fn:     fn,
	}
	f.timers = append(f.timers, t)

	return t
}

// Advance moves the fake clock forward by d and runs every callback whose
// deadline has been reached. Callbacks run without the fake's lock held,
// so they may schedule or stop timers themselves; timers they schedule
// inside the advanced window fire within the same Advance call.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue()
		if t == nil {
			return
		}

		t.fn()
	}
}

// popDue removes and returns the earliest due timer, or nil if none is due.
func (f *Fake) popDue() *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	best := -1

	for i, t := range f.timers {
		if t.at.After(f.now) {
			continue
		}

		if best == -1 || t.at.Before(f.timers[best].at) {
			best = i
		}
	}

	if best == -1 {
		return nil
	}

	t := f.timers[best]
	f.timers = append(f.timers[:best], f.timers[best+1:]...)
	t.fired = true

	return t
}

// remove drops t from the pending timers if still present.
// The caller must hold mu.
func (f *Fake) remove(t *fakeTimer) {
	for i, pending := range f.timers {
		if pending == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// fakeTimer is a pending callback scheduled on a Fake source.
type fakeTimer struct {
	// source is the owning fake clock.
	source *Fake
	// at is the fake deadline.
	at time.Time
	// fn is the scheduled callback.
	fn func()
	// fired records that popDue handed the timer out; guarded by source.mu.
	fired bool
	// stopped records a successful Stop; guarded by source.mu.
	stopped bool
}

// Stop cancels the pending callback.
// It reports false if the callback already ran or was already stopped.
func (t *fakeTimer) Stop() bool {
	t.source.mu.Lock()
	defer t.source.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}

	t.stopped = true
	t.source.remove(t)

	return true
}
