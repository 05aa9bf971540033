//go:build !unix

package timeout

// alarmSupported reports whether this platform can deliver SIGALRM.
const alarmSupported = false

// newAlarmTimer is unreachable here: resolving StrategySignal fails
// with ErrSignalUnsupported before a timer is ever constructed.
//
//nolint:ireturn,nolintlint
func newAlarmTimer(_ *Handle) expiryTimer {
	panic("timeout: the signal strategy is not available on this platform")
}

// CatchStrayAlarms does nothing where SIGALRM does not exist.
func CatchStrayAlarms() {}
