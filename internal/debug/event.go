package debug

import lua "github.com/yuin/gopher-lua"

// EventKind classifies an ExecutionEvent.
type EventKind int

const (
	// EventInstruction is delivered before every VM instruction that is not
	// a line boundary.
	EventInstruction EventKind = iota
	// EventLine marks the first instruction of a new source line, or of the
	// same line again after a backward jump.
	EventLine
	// EventCall marks entry into a function. gopher-lua has no call hook, so
	// the hook never produces it; entering a frame is seen as EventLine.
	EventCall
	// EventReturn marks control coming back to a caller that is mid-line.
	EventReturn
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventInstruction:
		return "instruction"
	case EventLine:
		return "line"
	case EventCall:
		return "call"
	case EventReturn:
		return "return"
	default:
		return "unknown"
	}
}

// ExecutionEvent describes the VM position at a hook invocation. Location
// fields are only filled while debugging is enabled.
type ExecutionEvent struct {
	Kind     EventKind
	Source   string
	Line     int
	Function string

	// Depth is the number of frames on the call stack, including the
	// frames of the threads that resumed a running coroutine.
	Depth int

	// thread is the LState that raised the event.
	thread *lua.LState
}
