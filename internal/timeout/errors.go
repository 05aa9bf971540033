package timeout

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyArmed is returned by Begin while another deadline is
	// active. Nested or overlapping arming is a programming error and is
	// never retried; the existing deadline stays untouched.
	ErrAlreadyArmed = errors.New("a deadline is already armed")
	// ErrInvalidDuration is returned for a negative or non-finite limit,
	// before any timer is scheduled.
	ErrInvalidDuration = errors.New("invalid timeout duration")
	// ErrSignalUnsupported is returned when the signal strategy is
	// requested on a platform that cannot deliver SIGALRM.
	ErrSignalUnsupported = errors.New("signal strategy is not supported on this platform")
	// ErrUnknownStrategy is returned for unrecognized strategy values.
	ErrUnknownStrategy = errors.New("unknown timeout strategy")
)

// ExpiredError is the failure carried by a protected context when its
// deadline expires under the signal strategy. The host's per-unit error
// handling consumes it through context.Cause or Handle.Expired; the
// process keeps running.
type ExpiredError struct {
	// Limit is the deadline that was exceeded.
	Limit time.Duration
}

// Error implements the error interface.
func (e *ExpiredError) Error() string {
	return fmt.Sprintf("timed out after %s", e.Limit)
}
