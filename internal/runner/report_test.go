package runner

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/hang-sentinel/internal/timeout"
)

// TestOutcomeString checks the report spelling of every outcome.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "passed", OutcomePassed.String())
	require.Equal(t, "failed", OutcomeFailed.String())
	require.Equal(t, "timed out", OutcomeTimedOut.String())
	require.Equal(t, "aborted", OutcomeAborted.String())
	require.Equal(t, "outcome(42)", Outcome(42).String())
}

// TestResultCells checks the derived report columns.
func TestResultCells(t *testing.T) {
	t.Parallel()

	passed := Result{Unit: "build", Outcome: OutcomePassed}
	require.Empty(t, passed.details())
	require.Equal(t, "off", passed.limitCell())

	expired := Result{
		Unit:     "suite",
		Outcome:  OutcomeTimedOut,
		Limit:    5 * time.Second,
		Strategy: timeout.StrategySignal,
		Err:      &timeout.ExpiredError{Limit: 5 * time.Second},
	}
	require.Equal(t, "timed out after 5s", expired.details())
	require.Equal(t, "5s (signal)", expired.limitCell())

	skipped := Result{Unit: "later", Outcome: OutcomeAborted}
	require.Equal(t, "aborted", skipped.details())
}

// TestWriteSummary renders one row per result, in run order.
func TestWriteSummary(t *testing.T) {
	t.Parallel()

	results := []Result{
		{
			Unit:     "build",
			Outcome:  OutcomePassed,
			Limit:    30 * time.Second,
			Strategy: timeout.StrategyThread,
			Elapsed:  1500 * time.Millisecond,
		},
		{
			Unit:     "slow-suite",
			Outcome:  OutcomeTimedOut,
			Limit:    2 * time.Second,
			Strategy: timeout.StrategySignal,
			Elapsed:  2 * time.Second,
			Err:      &timeout.ExpiredError{Limit: 2 * time.Second},
		},
		{
			Unit:    "migrate",
			Outcome: OutcomeFailed,
			Elapsed: 10 * time.Millisecond,
			Err:     errors.New("exit status 3"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeSummary(&buf, results))

	out := buf.String()
	require.Contains(t, out, "build")
	require.Contains(t, out, "30s (thread)")
	require.Contains(t, out, "1.5s")
	require.Contains(t, out, "slow-suite")
	require.Contains(t, out, "timed out after 2s")
	require.Contains(t, out, "migrate")
	require.Contains(t, out, "off")
	require.Contains(t, out, "exit status 3")

	// Row order follows run order.
	require.Less(t, bytes.Index(buf.Bytes(), []byte("build")), bytes.Index(buf.Bytes(), []byte("migrate")))
}

// TestTally counts results per outcome.
func TestTally(t *testing.T) {
	t.Parallel()

	counts := tally([]Result{
		{Outcome: OutcomePassed},
		{Outcome: OutcomePassed},
		{Outcome: OutcomeTimedOut},
		{Outcome: OutcomeAborted},
	})

	require.Equal(t, 2, counts[OutcomePassed])
	require.Equal(t, 1, counts[OutcomeTimedOut])
	require.Equal(t, 1, counts[OutcomeAborted])
	require.Zero(t, counts[OutcomeFailed])
}
