package timeout

import (
	"time"

	"github.com/oshokin/hang-sentinel/internal/clock"
)

// watchdogTimer implements the thread strategy: a timer callback that
// dumps every goroutine's stack and terminates the process. A hang that
// blocks forever cannot be unwound from within, so the escalation is
// process death rather than a recoverable failure.
type watchdogTimer struct {
	// handle is the deadline this timer enforces.
	handle *Handle
	// timer is the scheduled expiry.
	timer clock.Timer
	// finished is closed once expiry either ran to completion or can
	// no longer run.
	finished chan struct{}
}

func newWatchdogTimer(h *Handle) *watchdogTimer {
	return &watchdogTimer{
		handle:   h,
		finished: make(chan struct{}),
	}
}

func (w *watchdogTimer) start(limit time.Duration) {
	w.timer = w.handle.guard.source.AfterFunc(limit, w.expire)
}

// expire runs on the timer's goroutine once the deadline passes.
func (w *watchdogTimer) expire() {
	defer close(w.finished)

	h := w.handle
	g := h.guard

	if g.suppressed.Load() {
		return
	}

	if !h.state.CompareAndSwap(stateArmed, stateFiring) {
		return
	}

	g.dump(h.deadline.Limit)
	h.cancel(&ExpiredError{Limit: h.deadline.Limit})
	h.state.Store(stateFired)
	g.exit(g.abortCode)
}

// stop cancels the pending expiry. Exactly one of stop and expire
// closes finished: stop does when it cancelled the timer before it
// fired, expire does otherwise.
func (w *watchdogTimer) stop() {
	if w.timer.Stop() {
		close(w.finished)

		return
	}

	<-w.finished
}

func (w *watchdogTimer) settle() {
	<-w.finished
}
