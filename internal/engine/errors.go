package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/luahost/internal/debug"
	slua "github.com/dshills/luahost/internal/script/lua"
)

// Errors returned by engine operations.
var (
	// ErrNotLoaded indicates no script has been loaded.
	ErrNotLoaded = errors.New("no script loaded")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine is closed")

	// ErrModuleNotFound is raised by require for a missing module.
	ErrModuleNotFound = errors.New("module not found")

	// ErrCircularDependency is raised by require when a module requires
	// itself, directly or through other modules.
	ErrCircularDependency = errors.New("circular dependency detected")
)

// ErrorKind classifies a ScriptError.
type ErrorKind int

const (
	// KindRuntime is an ordinary script error.
	KindRuntime ErrorKind = iota
	// KindCompile is a syntax error in a script or module.
	KindCompile
	// KindWatchdog is a call aborted by the watchdog.
	KindWatchdog
	// KindTerminated is a call aborted by a termination request.
	KindTerminated
	// KindExit is a paused call aborted because the host is exiting.
	KindExit
	// KindInstructionLimit is a call that ran out of instruction budget.
	KindInstructionLimit
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindRuntime:
		return "runtime"
	case KindCompile:
		return "compile"
	case KindWatchdog:
		return "watchdog"
	case KindTerminated:
		return "terminated"
	case KindExit:
		return "exit"
	case KindInstructionLimit:
		return "instruction-limit"
	default:
		return "unknown"
	}
}

// ScriptError is a failed script load or top-level call.
type ScriptError struct {
	// Op is the operation that failed: "load", "init", "update", "draw" or
	// a function name passed to Call.
	Op string

	// Kind classifies the failure.
	Kind ErrorKind

	// Message is the script-level error message.
	Message string

	// Stack is the script call stack at the point of failure, innermost
	// first. It is empty for compile errors.
	Stack []debug.StackFrameInfo

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Trace formats the stack one frame per line.
func (e *ScriptError) Trace() string {
	var b strings.Builder
	for i, f := range e.Stack {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(formatFrame(f))
	}
	return b.String()
}

func formatFrame(f debug.StackFrameInfo) string {
	if f.Line < 0 {
		return fmt.Sprintf("  at %s (%s)", f.FunctionName, f.Source)
	}
	return fmt.Sprintf("  at %s (%s:%d)", f.FunctionName, f.Source, f.Line)
}

// classify maps an abort raised by the debugger or sandbox to an ErrorKind.
func classify(abort error) ErrorKind {
	switch {
	case abort == nil:
		return KindRuntime
	case errors.Is(abort, debug.ErrWatchdogTimeout):
		return KindWatchdog
	case errors.Is(abort, debug.ErrTerminationRequested):
		return KindTerminated
	case errors.Is(abort, debug.ErrExitRequested):
		return KindExit
	case errors.Is(abort, slua.ErrInstructionLimit):
		return KindInstructionLimit
	default:
		return KindRuntime
	}
}

// IsAbort reports whether err is a call stopped by the host rather than a
// script bug.
func IsAbort(err error) bool {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Kind != KindRuntime && se.Kind != KindCompile
	}
	return debug.IsAbort(err) || errors.Is(err, slua.ErrInstructionLimit)
}
