package debug

import (
	"sync/atomic"

	"github.com/dshills/luahost/internal/debug/breakpoint"
)

// HaltFunc runs on the executing goroutine after the state machine has
// decided to stop. It blocks until execution may continue and returns an
// error to abort the script instead.
type HaltFunc func(ev *ExecutionEvent, reason string) error

// StateMachine decides, for every line event, whether execution halts.
//
// Control goroutines call SetEnabled, SetAction and Resume; the executing
// goroutine calls OnLine. All state is atomic so neither side blocks the
// other.
type StateMachine struct {
	breakpoints *breakpoint.Registry
	halt        HaltFunc
	wake        chan struct{}

	enabled atomic.Bool
	paused  atomic.Bool
	action  atomic.Int32

	// haltDepth is the frame count at the current halt, -1 when running.
	haltDepth atomic.Int64
	// stepOrigin is the depth a StepOver/StepOut is measured against.
	stepOrigin atomic.Int64
	// stepArmed means a step was requested while running; the next line
	// event records the origin instead of being evaluated.
	stepArmed atomic.Bool
}

// NewStateMachine creates a disabled state machine. halt may be nil, in
// which case halting only records the paused state.
func NewStateMachine(bps *breakpoint.Registry, halt HaltFunc) *StateMachine {
	m := &StateMachine{
		breakpoints: bps,
		halt:        halt,
		wake:        make(chan struct{}, 1),
	}
	m.haltDepth.Store(-1)
	return m
}

// Wakeups signals whenever the pause loop should re-check its conditions.
func (m *StateMachine) Wakeups() <-chan struct{} {
	return m.wake
}

// Wake nudges a waiting pause loop without blocking.
func (m *StateMachine) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// SetEnabled turns line evaluation on or off. Disabling also releases a
// halted script and drops the pending action.
func (m *StateMachine) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	if !enabled {
		m.stepArmed.Store(false)
		m.action.Store(int32(ActionNone))
		m.paused.Store(false)
	}
	m.Wake()
}

// Enabled reports whether line events are evaluated.
func (m *StateMachine) Enabled() bool {
	return m.enabled.Load()
}

// Paused reports whether the executing goroutine is halted.
func (m *StateMachine) Paused() bool {
	return m.paused.Load()
}

// Action returns the pending action.
func (m *StateMachine) Action() Action {
	return Action(m.action.Load())
}

// State summarizes the machine.
func (m *StateMachine) State() SessionState {
	switch {
	case !m.enabled.Load():
		return StateDisabled
	case m.paused.Load():
		return StatePaused
	default:
		return StateRunning
	}
}

// SetAction stores a new action and releases a halted script. A step
// requested while halted is measured from the halt depth; one requested
// while running is measured from the next line event.
func (m *StateMachine) SetAction(a Action) {
	switch a {
	case ActionStepOver, ActionStepOut:
		if depth := m.haltDepth.Load(); m.paused.Load() && depth >= 0 {
			m.stepOrigin.Store(depth)
			m.stepArmed.Store(false)
		} else {
			m.stepArmed.Store(true)
		}
	default:
		m.stepArmed.Store(false)
	}
	m.action.Store(int32(a))
	m.paused.Store(false)
	m.Wake()
}

// Resume releases a halted script and keeps the pending action.
func (m *StateMachine) Resume() {
	m.paused.Store(false)
	m.Wake()
}

// Reset returns the machine to a disabled, running state.
func (m *StateMachine) Reset() {
	m.enabled.Store(false)
	m.stepArmed.Store(false)
	m.action.Store(int32(ActionNone))
	m.stepOrigin.Store(0)
	m.paused.Store(false)
	m.Wake()
}

// Check implements Strategy for line events.
func (m *StateMachine) Check(ev *ExecutionEvent) error {
	if ev.Kind != EventLine {
		return nil
	}
	return m.OnLine(ev)
}

// OnLine evaluates a line event and halts if a breakpoint matches or the
// pending action completes here.
func (m *StateMachine) OnLine(ev *ExecutionEvent) error {
	if !m.enabled.Load() {
		return nil
	}
	reason, stop := m.evaluate(ev)
	if !stop {
		return nil
	}

	m.action.Store(int32(ActionNone))
	m.stepArmed.Store(false)
	m.haltDepth.Store(int64(ev.Depth))
	m.paused.Store(true)
	defer m.endHalt()

	if m.halt == nil {
		return nil
	}
	return m.halt(ev, reason)
}

func (m *StateMachine) endHalt() {
	m.haltDepth.Store(-1)
	m.paused.Store(false)
}

func (m *StateMachine) evaluate(ev *ExecutionEvent) (string, bool) {
	if m.breakpoints != nil && m.breakpoints.Matches(ev.Source, ev.Line) {
		return ReasonBreakpoint, true
	}

	action := Action(m.action.Load())
	switch action {
	case ActionPause:
		return ReasonPause, true
	case ActionStepIn:
		return ReasonStep, true
	case ActionStepOver, ActionStepOut:
		if m.stepArmed.CompareAndSwap(true, false) {
			m.stepOrigin.Store(int64(ev.Depth))
			return "", false
		}
		origin := int(m.stepOrigin.Load())
		if action == ActionStepOver && ev.Depth <= origin {
			return ReasonStep, true
		}
		if action == ActionStepOut && ev.Depth < origin {
			return ReasonStep, true
		}
	}
	return "", false
}
