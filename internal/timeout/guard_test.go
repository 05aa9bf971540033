package timeout

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/hang-sentinel/internal/clock"
)

// exitRecorder captures exit codes instead of terminating the process.
type exitRecorder struct {
	codes []int
}

func (r *exitRecorder) record(code int) {
	r.codes = append(r.codes, code)
}

// newTestGuard builds a guard on a fake clock with a capture sink and a
// recording exit function.
func newTestGuard(t *testing.T, options ...Option) (*Guard, *clock.Fake, *bytes.Buffer, *exitRecorder) {
	t.Helper()

	fake := clock.NewFake()
	sink := new(bytes.Buffer)
	recorder := new(exitRecorder)

	options = append([]Option{
		WithTimeSource(fake),
		WithSink(sink),
		WithExitFunc(recorder.record),
	}, options...)

	return NewGuard(options...), fake, sink, recorder
}

// parkUntilClosed closes started from inside itself and then blocks, so
// dumps taken in between always show a recognizable parked goroutine.
func parkUntilClosed(started, release chan struct{}) {
	close(started)
	<-release
}

// TestGuard_ThreadStrategyExpires verifies that an expired thread-strategy
// deadline dumps stacks, records the expiry cause and aborts the process.
func TestGuard_ThreadStrategyExpires(t *testing.T) {
	t.Parallel()

	g, fake, sink, recorder := newTestGuard(t)

	h, err := g.Begin(context.Background(), Deadline{Limit: 2 * time.Second, Strategy: StrategyThread})
	require.NoError(t, err)
	require.True(t, h.Enabled())
	require.Equal(t, EscalationKillProcess, h.Escalation())

	fake.Advance(2 * time.Second)

	require.Equal(t, []int{DefaultAbortExitCode}, recorder.codes)
	require.Contains(t, sink.String(), "timed out after 2s")
	require.True(t, h.Expired())

	var expired *ExpiredError

	require.ErrorAs(t, context.Cause(h.Context()), &expired)
	require.Equal(t, 2*time.Second, expired.Limit)

	g.End(h)

	// The guard accepts a new deadline once the previous one ended.
	next, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)
	g.End(next)
}

// TestGuard_DisarmBeforeExpiry verifies that a deadline ended in time
// leaves no trace even when the clock later passes its limit.
func TestGuard_DisarmBeforeExpiry(t *testing.T) {
	t.Parallel()

	g, fake, sink, recorder := newTestGuard(t)

	h, err := g.Begin(context.Background(), Deadline{Limit: 2 * time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	g.End(h)
	fake.Advance(5 * time.Second)

	require.Empty(t, recorder.codes)
	require.Zero(t, sink.Len())
	require.False(t, h.Expired())
	require.ErrorIs(t, context.Cause(h.Context()), context.Canceled)
}

// TestGuard_SecondBeginWhileArmed verifies the one-active-deadline rule.
func TestGuard_SecondBeginWhileArmed(t *testing.T) {
	t.Parallel()

	g, _, _, _ := newTestGuard(t)

	h, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	_, err = g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.ErrorIs(t, err, ErrAlreadyArmed)

	g.End(h)

	next, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)
	g.End(next)
}

// TestGuard_EndIsIdempotent verifies that End can be called repeatedly,
// both after a clean disarm and after an expiry.
func TestGuard_EndIsIdempotent(t *testing.T) {
	t.Parallel()

	g, fake, _, recorder := newTestGuard(t)

	h, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	g.End(h)
	g.End(h)

	h, err = g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	fake.Advance(time.Second)

	g.End(h)
	g.End(h)

	require.Equal(t, []int{DefaultAbortExitCode}, recorder.codes)
}

// TestGuard_ZeroLimitDisables verifies that a zero limit produces a
// handle that enforces nothing and passes the caller's context through.
func TestGuard_ZeroLimitDisables(t *testing.T) {
	t.Parallel()

	g, fake, sink, recorder := newTestGuard(t)
	ctx := context.Background()

	h, err := g.Begin(ctx, Deadline{Limit: 0})
	require.NoError(t, err)
	require.False(t, h.Enabled())
	require.Equal(t, EscalationNone, h.Escalation())
	require.Equal(t, ctx, h.Context())

	fake.Advance(time.Hour)
	g.End(h)

	require.Empty(t, recorder.codes)
	require.Zero(t, sink.Len())
	require.False(t, h.Expired())
}

// TestGuard_NegativeLimitRejected verifies that negative limits fail fast.
func TestGuard_NegativeLimitRejected(t *testing.T) {
	t.Parallel()

	g, _, _, _ := newTestGuard(t)

	h, err := g.Begin(context.Background(), Deadline{Limit: -time.Second})
	require.ErrorIs(t, err, ErrInvalidDuration)
	require.Nil(t, h)
}

// TestGuard_SuppressedExpiryTakesNoAction verifies that a firing deadline
// does nothing while suppressed and that resuming restores enforcement.
func TestGuard_SuppressedExpiryTakesNoAction(t *testing.T) {
	t.Parallel()

	g, fake, sink, recorder := newTestGuard(t)
	resume := g.Suppress()

	h, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	fake.Advance(time.Second)

	require.Empty(t, recorder.codes)
	require.Zero(t, sink.Len())
	require.False(t, h.Expired())

	g.End(h)
	resume()

	h, err = g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	fake.Advance(time.Second)

	require.Equal(t, []int{DefaultAbortExitCode}, recorder.codes)
	require.True(t, h.Expired())

	g.End(h)
}

// TestGuard_AbortExitCodeOverride verifies the configurable abort status.
func TestGuard_AbortExitCodeOverride(t *testing.T) {
	t.Parallel()

	g, fake, _, recorder := newTestGuard(t, WithAbortExitCode(99))

	h, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	fake.Advance(time.Second)
	g.End(h)

	require.Equal(t, []int{99}, recorder.codes)
}

// TestGuard_RunTranslatesExpiry verifies that Run reports the expiry as
// its error even when the work returned something else on the way out.
func TestGuard_RunTranslatesExpiry(t *testing.T) {
	t.Parallel()

	g, fake, _, recorder := newTestGuard(t)

	err := g.Run(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread}, func(ctx context.Context) error {
		fake.Advance(time.Second)

		return ctx.Err()
	})

	var expired *ExpiredError

	require.ErrorAs(t, err, &expired)
	require.Equal(t, time.Second, expired.Limit)
	require.Equal(t, []int{DefaultAbortExitCode}, recorder.codes)
}

// TestGuard_RunReturnsWorkError verifies that without an expiry Run
// reports the work's own error unchanged.
func TestGuard_RunReturnsWorkError(t *testing.T) {
	t.Parallel()

	g, _, _, _ := newTestGuard(t)
	errWork := errors.New("unit broke")

	err := g.Run(context.Background(), Deadline{Limit: time.Hour, Strategy: StrategyThread}, func(_ context.Context) error {
		return errWork
	})
	require.ErrorIs(t, err, errWork)

	err = g.Run(context.Background(), Deadline{Limit: time.Hour, Strategy: StrategyThread}, func(_ context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

// TestGuard_RunRejectsBadDeadline verifies that Run surfaces Begin errors.
func TestGuard_RunRejectsBadDeadline(t *testing.T) {
	t.Parallel()

	g, _, _, _ := newTestGuard(t)

	err := g.Run(context.Background(), Deadline{Limit: -time.Second}, func(_ context.Context) error {
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidDuration)
}

// TestGuard_DumpExcludesCaller verifies that the dump shows every
// goroutine except the one taking the snapshot.
func TestGuard_DumpExcludesCaller(t *testing.T) {
	t.Parallel()

	g, fake, sink, _ := newTestGuard(t)

	started := make(chan struct{})
	release := make(chan struct{})

	go parkUntilClosed(started, release)
	defer close(release)

	<-started

	h, err := g.Begin(context.Background(), Deadline{Limit: time.Second, Strategy: StrategyThread})
	require.NoError(t, err)

	fake.Advance(time.Second)
	g.End(h)

	out := sink.String()
	require.Contains(t, out, "parkUntilClosed")
	require.NotContains(t, out, "TestGuard_DumpExcludesCaller")
}

// TestGuard_ExpiryDisarmRace hammers the boundary between a firing
// deadline and a concurrent End: each round must finish as either a
// complete expiry or a clean disarm.
func TestGuard_ExpiryDisarmRace(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		g, fake, sink, recorder := newTestGuard(t)

		h, err := g.Begin(context.Background(), Deadline{Limit: time.Millisecond, Strategy: StrategyThread})
		require.NoError(t, err)

		done := make(chan struct{})

		go func() {
			defer close(done)

			g.End(h)
		}()

		fake.Advance(time.Millisecond)
		<-done
		g.End(h)

		if len(recorder.codes) > 0 {
			require.Equal(t, []int{DefaultAbortExitCode}, recorder.codes)
			require.Contains(t, sink.String(), "timed out after")
			require.True(t, h.Expired())
		} else {
			require.Zero(t, sink.Len())
			require.False(t, h.Expired())
		}
	}
}

// TestExpiredError_Message pins the expiry message format.
func TestExpiredError_Message(t *testing.T) {
	t.Parallel()

	err := &ExpiredError{Limit: 2 * time.Second}
	require.Equal(t, "timed out after 2s", err.Error())

	err = &ExpiredError{Limit: 1500 * time.Millisecond}
	require.Equal(t, "timed out after 1.5s", err.Error())
}
