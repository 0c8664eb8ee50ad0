package debug

import "strings"

// Action is the pending execution-control request.
type Action int32

const (
	// ActionNone runs until a breakpoint.
	ActionNone Action = iota
	// ActionContinue resumes and runs until a breakpoint.
	ActionContinue
	// ActionStepIn halts at the next line event.
	ActionStepIn
	// ActionStepOver halts at the next line at the same or a shallower depth.
	ActionStepOver
	// ActionStepOut halts at the next line in a caller.
	ActionStepOut
	// ActionPause halts at the next line event.
	ActionPause
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionContinue:
		return "continue"
	case ActionStepIn:
		return "stepIn"
	case ActionStepOver:
		return "stepOver"
	case ActionStepOut:
		return "stepOut"
	case ActionPause:
		return "pause"
	default:
		return "unknown"
	}
}

// ParseAction maps a name (or its usual debugger shorthand) to an Action.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(s) {
	case "none":
		return ActionNone, true
	case "continue", "c":
		return ActionContinue, true
	case "stepin", "step", "s":
		return ActionStepIn, true
	case "stepover", "next", "n":
		return ActionStepOver, true
	case "stepout", "out", "o":
		return ActionStepOut, true
	case "pause", "p":
		return ActionPause, true
	default:
		return ActionNone, false
	}
}

// Stop reasons passed to the stop callback.
const (
	ReasonBreakpoint = "breakpoint"
	ReasonStep       = "step"
	ReasonPause      = "pause"
)

// SessionState summarizes the debugger for front ends.
type SessionState int

const (
	// StateDisabled means debugging is off; only the watchdog and
	// termination checks run.
	StateDisabled SessionState = iota
	// StateRunning means debugging is on and the script is not halted.
	StateRunning
	// StatePaused means the executing goroutine is inside the pause loop.
	StatePaused
)

// String returns a string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
