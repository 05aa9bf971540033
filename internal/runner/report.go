package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/oshokin/hang-sentinel/internal/timeout"
)

// Outcome classifies how one unit of work ended.
type Outcome int

const (
	// OutcomePassed means the unit finished in time with a zero exit status.
	OutcomePassed Outcome = iota
	// OutcomeFailed means the unit finished in time with a nonzero exit
	// status, or could not be started at all.
	OutcomeFailed
	// OutcomeTimedOut means the unit's deadline fired and the unit was
	// abandoned.
	OutcomeTimedOut
	// OutcomeAborted means the whole run was interrupted before or while
	// the unit ran, typically by the operator.
	OutcomeAborted
)

// String returns the report spelling of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result records how one unit ended.
type Result struct {
	// Unit names the manifest entry.
	Unit string
	// Outcome classifies the ending.
	Outcome Outcome
	// Limit is the deadline that covered the unit, zero when disabled.
	Limit time.Duration
	// Strategy is the enforcement strategy that covered the unit.
	Strategy timeout.Strategy
	// Elapsed is the unit's wall-clock run time.
	Elapsed time.Duration
	// ExitCode is the child's exit status when it exited on its own with
	// a failure, zero otherwise.
	ExitCode int
	// Err is the failure cause, nil for passed units.
	Err error
}

// details renders the report's last column for the result.
func (r Result) details() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.Outcome == OutcomePassed:
		return ""
	default:
		return r.Outcome.String()
	}
}

// limitCell renders the deadline column, marking disabled enforcement.
func (r Result) limitCell() string {
	if r.Limit == 0 {
		return "off"
	}

	return fmt.Sprintf("%s (%s)", r.Limit, r.Strategy)
}

// writeSummary renders one table row per unit, in run order.
func writeSummary(w io.Writer, results []Result) error {
	table := tablewriter.NewWriter(w)
	table.Header("Unit", "Outcome", "Limit", "Elapsed", "Details")

	for _, r := range results {
		err := table.Append(
			r.Unit,
			r.Outcome.String(),
			r.limitCell(),
			r.Elapsed.Round(time.Millisecond).String(),
			r.details(),
		)
		if err != nil {
			return fmt.Errorf("append summary row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	return nil
}

// tally counts results per outcome.
func tally(results []Result) map[Outcome]int {
	counts := make(map[Outcome]int, len(results))

	for _, r := range results {
		counts[r.Outcome]++
	}

	return counts
}
