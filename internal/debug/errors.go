package debug

import "errors"

// Errors raised into the script or returned by the control API.
var (
	// ErrWatchdogTimeout aborts a call that ran past its watchdog budget.
	ErrWatchdogTimeout = errors.New("watchdog timeout: script exceeded its time budget")

	// ErrTerminationRequested aborts the script after RequestTermination.
	ErrTerminationRequested = errors.New("script termination requested")

	// ErrExitRequested aborts a paused script because the host is exiting.
	ErrExitRequested = errors.New("host exit requested")

	// ErrNotPaused is returned by introspection calls while the script runs.
	ErrNotPaused = errors.New("debugger is not paused")

	// ErrInvalidFrame is returned for a frame index outside the call stack.
	ErrInvalidFrame = errors.New("invalid stack frame")

	// ErrNotAttached is returned when no VM is attached.
	ErrNotAttached = errors.New("debugger is not attached")
)

// IsAbort reports whether err is one of the errors the debugger raises to
// stop a script.
func IsAbort(err error) bool {
	return errors.Is(err, ErrWatchdogTimeout) ||
		errors.Is(err, ErrTerminationRequested) ||
		errors.Is(err, ErrExitRequested)
}
