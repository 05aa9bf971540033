package timeout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oshokin/hang-sentinel/internal/clock"
	"github.com/oshokin/hang-sentinel/internal/logger"
	"github.com/oshokin/hang-sentinel/internal/stack"
)

// Tracer dumps every goroutine's stack when a unit of work outlives its
// limit, without failing or terminating it. It is the diagnostic
// counterpart of a Guard deadline: the work keeps running and only the
// report is produced.
type Tracer struct {
	// limit is how long a unit may run before the dump.
	limit time.Duration
	// source supplies timers; tests inject a fake.
	source clock.TimeSource
	// sink receives the dump.
	sink io.Writer
	// exit terminates the process when abort is set.
	exit func(code int)
	// abort makes the tracer terminate the process after dumping.
	abort bool
	// code is the exit status used when abort is set.
	code int

	// mu serializes arm and disarm against each other.
	mu sync.Mutex
	// timer is the pending dump, nil while disarmed.
	timer clock.Timer
}

// TracerOption customizes a Tracer.
type TracerOption func(*Tracer)

// WithTracerTimeSource makes the tracer schedule its dump on the given
// time source instead of the system clock.
func WithTracerTimeSource(source clock.TimeSource) TracerOption {
	return func(t *Tracer) {
		t.source = source
	}
}

// WithTracerSink directs the dump to w instead of standard error.
func WithTracerSink(w io.Writer) TracerOption {
	return func(t *Tracer) {
		t.sink = w
	}
}

// WithTracerAbort makes the tracer terminate the process with the given
// exit status after dumping, turning it into a last-resort watchdog.
func WithTracerAbort(code int) TracerOption {
	return func(t *Tracer) {
		t.abort = true
		t.code = code
	}
}

// WithTracerExitFunc replaces the process termination call used when
// abort is set; tests record the code instead of exiting.
func WithTracerExitFunc(fn func(code int)) TracerOption {
	return func(t *Tracer) {
		t.exit = fn
	}
}

// NewTracer returns a tracer that dumps to standard error after limit.
func NewTracer(limit time.Duration, options ...TracerOption) *Tracer {
	t := &Tracer{
		limit:  limit,
		source: clock.System(),
		sink:   os.Stderr,
		exit:   os.Exit,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// Arm schedules a dump after the tracer's limit. Arming again replaces
// the pending dump, restarting the countdown.
func (t *Tracer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}

	t.timer = t.source.AfterFunc(t.limit, t.fire)
}

// Disarm cancels the pending dump, if any.
func (t *Tracer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fire runs on the timer's goroutine once the limit passes.
func (t *Tracer) fire() {
	t.mu.Lock()
	t.timer = nil
	t.mu.Unlock()

	snapshots := stack.WithoutID(stack.All(), stack.CurrentID())
	title := fmt.Sprintf("still running after %s", t.limit)

	if err := stack.WriteDump(t.sink, title, snapshots); err != nil {
		logger.Errorf(context.Background(), "Failed to dump goroutine stacks: %v", err)
	}

	if t.abort {
		t.exit(t.code)
	}
}
