package timeout

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Strategy selects the mechanism that detects and acts on expiry.
type Strategy int

const (
	// StrategyAuto resolves to StrategySignal on platforms that can
	// deliver SIGALRM and to StrategyThread everywhere else.
	StrategyAuto Strategy = iota
	// StrategySignal enforces the deadline with a one-shot alarm signal
	// and surfaces expiry as a recoverable failure in the work's context.
	StrategySignal
	// StrategyThread enforces the deadline from a dedicated timer
	// goroutine that dumps all stacks and terminates the process.
	StrategyThread
)

// String returns the configuration spelling of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategySignal:
		return "signal"
	case StrategyThread:
		return "thread"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy converts a configuration value to a Strategy.
// The empty string parses as StrategyAuto.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StrategyAuto, nil
	case "signal":
		return StrategySignal, nil
	case "thread":
		return StrategyThread, nil
	default:
		return StrategyAuto, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Escalation is the action taken when a deadline is exceeded.
type Escalation int

const (
	// EscalationNone is reported by disabled handles; expiry cannot occur.
	EscalationNone Escalation = iota
	// EscalationCancelContext abandons the protected work by cancelling
	// its context with an *ExpiredError cause; the process keeps running.
	EscalationCancelContext
	// EscalationKillProcess dumps every goroutine's stack and terminates
	// the process with the configured abort exit status.
	EscalationKillProcess
)

// String returns a short name for the escalation.
func (e Escalation) String() string {
	switch e {
	case EscalationNone:
		return "none"
	case EscalationCancelContext:
		return "cancel-context"
	case EscalationKillProcess:
		return "kill-process"
	default:
		return fmt.Sprintf("escalation(%d)", int(e))
	}
}

// Deadline is the immutable description of one armed timeout: how long the
// protected work may run and which strategy enforces it.
type Deadline struct {
	// Limit is how long the unit of work may run.
	// Zero disables enforcement entirely; negative values are rejected.
	Limit time.Duration
	// Strategy selects the enforcement mechanism. StrategyAuto resolves
	// to the platform default at arm time.
	Strategy Strategy
}

// resolve maps the deadline's strategy to a concrete one for this
// platform. The choice is made per arm call, never process-wide, so tests
// can force either strategy.
func (d Deadline) resolve() (Strategy, error) {
	switch d.Strategy {
	case StrategyAuto:
		if alarmSupported {
			return StrategySignal, nil
		}

		return StrategyThread, nil
	case StrategySignal:
		if !alarmSupported {
			return StrategyAuto, ErrSignalUnsupported
		}

		return StrategySignal, nil
	case StrategyThread:
		return StrategyThread, nil
	default:
		return StrategyAuto, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(d.Strategy))
	}
}

// DurationFromSeconds converts a configuration value in seconds to a
// Duration, rejecting negative and non-finite values.
func DurationFromSeconds(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("%w: %v seconds", ErrInvalidDuration, seconds)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
