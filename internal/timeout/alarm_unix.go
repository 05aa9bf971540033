//go:build unix

package timeout

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oshokin/hang-sentinel/internal/clock"
)

// alarmSupported reports whether this platform can deliver SIGALRM.
const alarmSupported = true

// alarmTimer implements the signal strategy: expiry is announced by a
// SIGALRM sent to the process itself, and a watcher goroutine turns the
// delivered signal into a stack dump and a context cancellation. An
// alarm sent from outside the process while the handle is armed expires
// the deadline the same way.
type alarmTimer struct {
	// handle is the deadline this timer enforces.
	handle *Handle
	// timer schedules the alarm.
	timer clock.Timer
	// signals receives SIGALRM while the handle is armed.
	signals chan os.Signal
	// done tells the watcher to quit after a clean disarm.
	done chan struct{}
	// stopped is closed when the watcher has exited and the signal
	// subscription is released.
	stopped chan struct{}
}

//nolint:ireturn,nolintlint
func newAlarmTimer(h *Handle) expiryTimer {
	return &alarmTimer{
		handle:  h,
		signals: make(chan os.Signal, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (a *alarmTimer) start(limit time.Duration) {
	signal.Notify(a.signals, syscall.SIGALRM)

	go a.watch()

	a.timer = a.handle.guard.source.AfterFunc(limit, a.raise)
}

// raise runs when the deadline passes and delivers SIGALRM to this
// process. The armed to firing transition happens before the signal is
// sent, so a concurrent End can never let the alarm outlive its handle.
func (a *alarmTimer) raise() {
	h := a.handle

	if h.guard.suppressed.Load() {
		return
	}

	if !h.state.CompareAndSwap(stateArmed, stateFiring) {
		return
	}

	_ = syscall.Kill(os.Getpid(), syscall.SIGALRM)
}

func (a *alarmTimer) watch() {
	defer close(a.stopped)
	defer signal.Stop(a.signals)

	for {
		select {
		case <-a.signals:
			if a.expire() {
				return
			}
		case <-a.done:
			return
		}
	}
}

// expire handles one delivered alarm and reports whether it terminated
// the handle, which ends the watch loop. Alarms arriving after a clean
// disarm are stray and ignored.
func (a *alarmTimer) expire() bool {
	h := a.handle
	g := h.guard

	if h.state.Load() != stateFiring && !h.state.CompareAndSwap(stateArmed, stateFiring) {
		return false
	}

	if g.suppressed.Load() {
		h.state.Store(stateFired)

		return true
	}

	g.dump(h.deadline.Limit)
	h.cancel(&ExpiredError{Limit: h.deadline.Limit})
	h.state.Store(stateFired)

	return true
}

func (a *alarmTimer) stop() {
	a.timer.Stop()
	close(a.done)
	<-a.stopped
}

// settle stops the deadline timer as well, since an alarm sent from
// outside the process can fire the handle while the timer is still
// pending.
func (a *alarmTimer) settle() {
	a.timer.Stop()
	<-a.stopped
}

var catchStrayAlarmsOnce sync.Once

// CatchStrayAlarms installs a process-wide SIGALRM subscription that is
// never removed. Without it, an alarm delivered outside an armed
// deadline would hit the runtime's default disposition and kill the
// process.
func CatchStrayAlarms() {
	catchStrayAlarmsOnce.Do(func() {
		signal.Notify(make(chan os.Signal, 1), syscall.SIGALRM)
	})
}
