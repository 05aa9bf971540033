package timeout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/oshokin/hang-sentinel/internal/clock"
	"github.com/oshokin/hang-sentinel/internal/logger"
	"github.com/oshokin/hang-sentinel/internal/stack"
)

// DefaultAbortExitCode is the process exit status reported when a
// kill-process escalation fires. It matches the convention established
// by the GNU timeout utility.
const DefaultAbortExitCode = 124

// Handle lifecycle states.
const (
	stateDisabled int32 = iota
	stateArmed
	stateDisarmed
	stateFiring
	stateFired
)

// Guard arms wall-clock deadlines over units of work. At most one
// deadline is armed at a time; Begin fails with ErrAlreadyArmed while
// another handle is active.
//
// Signal-strategy handles assume the guard is the only SIGALRM consumer
// in the process, since the signal itself is process-global.
type Guard struct {
	// source supplies timers; tests inject a fake.
	source clock.TimeSource
	// sink receives stack dumps.
	sink io.Writer
	// exit terminates the process on kill-process escalations.
	exit func(code int)
	// abortCode is the status passed to exit.
	abortCode int
	// suppressed pauses expiry actions while set.
	suppressed atomic.Bool
	// active holds the currently armed handle.
	active atomic.Pointer[Handle]
}

// Option customizes a Guard.
type Option func(*Guard)

// WithTimeSource makes the guard schedule expiries on the given time
// source instead of the system clock.
func WithTimeSource(source clock.TimeSource) Option {
	return func(g *Guard) {
		g.source = source
	}
}

// WithSink directs stack dumps to w instead of standard error.
func WithSink(w io.Writer) Option {
	return func(g *Guard) {
		g.sink = w
	}
}

// WithExitFunc replaces the process termination call used by
// kill-process escalations; tests record the code instead of exiting.
func WithExitFunc(fn func(code int)) Option {
	return func(g *Guard) {
		g.exit = fn
	}
}

// WithAbortExitCode overrides the exit status used by kill-process
// escalations.
func WithAbortExitCode(code int) Option {
	return func(g *Guard) {
		g.abortCode = code
	}
}

// NewGuard returns a guard that schedules on the system clock, dumps
// stacks to standard error and terminates the process through os.Exit.
func NewGuard(options ...Option) *Guard {
	g := &Guard{
		source:    clock.System(),
		sink:      os.Stderr,
		exit:      os.Exit,
		abortCode: DefaultAbortExitCode,
	}

	for _, option := range options {
		option(g)
	}

	return g
}

// Handle represents one armed deadline covering a unit of work.
type Handle struct {
	// guard owns the handle.
	guard *Guard
	// deadline records the limit and the resolved strategy.
	deadline Deadline
	// escalation is the action taken when the deadline fires.
	escalation Escalation
	// state tracks the arm, disarm and fire lifecycle.
	state atomic.Int32
	// ctx governs the protected work.
	ctx context.Context
	// cancel cancels ctx, with an *ExpiredError cause on expiry.
	cancel context.CancelCauseFunc
	// timer is the strategy-specific expiry mechanism, nil when the
	// deadline is disabled.
	timer expiryTimer
}

// expiryTimer is the strategy-specific mechanism behind an armed handle.
type expiryTimer interface {
	// start schedules expiry after limit.
	start(limit time.Duration)
	// stop cancels a deadline that was disarmed in time and releases
	// the mechanism's resources. It is called at most once, by the End
	// call that won the disarm.
	stop()
	// settle waits for an in-flight or completed expiry to finish so
	// End never races the dump or the context cause.
	settle()
}

// Begin arms a deadline and returns a handle covering the unit of work
// that follows. A zero limit returns a disabled handle whose context is
// ctx itself. The caller must call End exactly when the unit finishes.
func (g *Guard) Begin(ctx context.Context, d Deadline) (*Handle, error) {
	if d.Limit < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, d.Limit)
	}

	if d.Limit == 0 {
		return &Handle{guard: g, ctx: ctx}, nil
	}

	strategy, err := d.resolve()
	if err != nil {
		return nil, err
	}

	d.Strategy = strategy

	h := &Handle{
		guard:    g,
		deadline: d,
	}

	if strategy == StrategySignal {
		h.escalation = EscalationCancelContext
		h.timer = newAlarmTimer(h)
	} else {
		h.escalation = EscalationKillProcess
		h.timer = newWatchdogTimer(h)
	}

	if !g.active.CompareAndSwap(nil, h) {
		return nil, ErrAlreadyArmed
	}

	h.ctx, h.cancel = context.WithCancelCause(ctx)

	// The armed state must be visible before the timer can fire, since
	// every expiry path transitions armed to firing.
	h.state.Store(stateArmed)
	h.timer.start(d.Limit)

	return h, nil
}

// End disarms the handle's deadline. If the deadline already fired, End
// waits for the expiry actions to finish before returning. End is
// idempotent and a no-op for disabled handles.
func (g *Guard) End(h *Handle) {
	if h == nil || h.timer == nil {
		return
	}

	if h.state.CompareAndSwap(stateArmed, stateDisarmed) {
		h.timer.stop()
	} else {
		h.timer.settle()
	}

	h.cancel(nil)
	g.active.CompareAndSwap(h, nil)
}

// Run executes fn under the given deadline. If the deadline fires, the
// returned error is the *ExpiredError recorded as the context cause,
// taking precedence over whatever fn returned while being torn down.
func (g *Guard) Run(ctx context.Context, d Deadline, fn func(context.Context) error) (err error) {
	h, beginErr := g.Begin(ctx, d)
	if beginErr != nil {
		return beginErr
	}

	defer func() {
		g.End(h)

		if expired := h.expiredCause(); expired != nil {
			err = expired
		}
	}()

	return fn(h.Context())
}

// Suppress pauses expiry actions, typically while an interactive
// debugger has the process. Firing deadlines take no action and leave
// no trace until the returned resume function is called.
func (g *Guard) Suppress() func() {
	g.suppressed.Store(true)

	return func() {
		g.suppressed.Store(false)
	}
}

// dump writes a snapshot of every goroutine except the calling one to
// the guard's sink.
func (g *Guard) dump(limit time.Duration) {
	snapshots := stack.WithoutID(stack.All(), stack.CurrentID())
	title := fmt.Sprintf("timed out after %s", limit)

	if err := stack.WriteDump(g.sink, title, snapshots); err != nil {
		logger.Errorf(context.Background(), "Failed to dump goroutine stacks: %v", err)
	}
}

// Context returns the context governing the protected work. Under
// EscalationCancelContext it is cancelled with an *ExpiredError cause
// when the deadline fires.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Deadline returns the deadline the handle enforces. Its strategy is
// the resolved one, never StrategyAuto.
func (h *Handle) Deadline() Deadline {
	return h.deadline
}

// Escalation returns the action taken when the deadline fires.
func (h *Handle) Escalation() Escalation {
	return h.escalation
}

// Enabled reports whether the handle enforces a deadline at all.
func (h *Handle) Enabled() bool {
	return h.timer != nil
}

// Expired reports whether the deadline fired.
func (h *Handle) Expired() bool {
	return h.expiredCause() != nil
}

// expiredCause returns the *ExpiredError recorded as the context cause,
// or nil if the deadline never fired.
func (h *Handle) expiredCause() *ExpiredError {
	var expired *ExpiredError
	if errors.As(context.Cause(h.ctx), &expired) {
		return expired
	}

	return nil
}
