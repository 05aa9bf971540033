package timeout

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/hang-sentinel/internal/clock"
)

// newTestTracer builds a tracer on a fake clock with a capture sink.
func newTestTracer(t *testing.T, limit time.Duration, options ...TracerOption) (*Tracer, *clock.Fake, *bytes.Buffer) {
	t.Helper()

	fake := clock.NewFake()
	sink := new(bytes.Buffer)

	options = append([]TracerOption{
		WithTracerTimeSource(fake),
		WithTracerSink(sink),
	}, options...)

	return NewTracer(limit, options...), fake, sink
}

// TestTracer_DumpsAfterLimit verifies the dump fires once the limit
// passes and that the work is otherwise left alone.
func TestTracer_DumpsAfterLimit(t *testing.T) {
	t.Parallel()

	tracer, fake, sink := newTestTracer(t, 3*time.Second)

	tracer.Arm()
	fake.Advance(2 * time.Second)
	require.Zero(t, sink.Len())

	fake.Advance(time.Second)
	require.Contains(t, sink.String(), "still running after 3s")
}

// TestTracer_DisarmCancels verifies that a disarmed tracer never dumps.
func TestTracer_DisarmCancels(t *testing.T) {
	t.Parallel()

	tracer, fake, sink := newTestTracer(t, 3*time.Second)

	tracer.Arm()
	tracer.Disarm()
	fake.Advance(time.Hour)

	require.Zero(t, sink.Len())
}

// TestTracer_RearmRestartsCountdown verifies that arming again replaces
// the pending dump.
func TestTracer_RearmRestartsCountdown(t *testing.T) {
	t.Parallel()

	tracer, fake, sink := newTestTracer(t, 3*time.Second)

	tracer.Arm()
	fake.Advance(2 * time.Second)

	tracer.Arm()
	fake.Advance(2 * time.Second)
	require.Zero(t, sink.Len())

	fake.Advance(time.Second)
	require.Contains(t, sink.String(), "still running after 3s")
}

// TestTracer_AbortExits verifies the optional termination after the dump.
func TestTracer_AbortExits(t *testing.T) {
	t.Parallel()

	recorder := new(exitRecorder)
	tracer, fake, sink := newTestTracer(t, time.Second,
		WithTracerAbort(7),
		WithTracerExitFunc(recorder.record),
	)

	tracer.Arm()
	fake.Advance(time.Second)

	require.Contains(t, sink.String(), "still running after 1s")
	require.Equal(t, []int{7}, recorder.codes)
}

// TestTracer_DisarmWithoutArm verifies Disarm is safe on an idle tracer.
func TestTracer_DisarmWithoutArm(t *testing.T) {
	t.Parallel()

	tracer, fake, sink := newTestTracer(t, time.Second)

	tracer.Disarm()
	fake.Advance(time.Hour)

	require.Zero(t, sink.Len())
}
