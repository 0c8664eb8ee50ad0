package debug

import (
	"testing"

	"github.com/dshills/luahost/internal/debug/breakpoint"
)

type haltRecord struct {
	line   int
	reason string
	depth  int
}

func newRecordingMachine(t *testing.T) (*StateMachine, *[]haltRecord) {
	t.Helper()
	var halts []haltRecord
	var m *StateMachine
	m = NewStateMachine(breakpoint.NewRegistry(), func(ev *ExecutionEvent, reason string) error {
		if !m.Paused() {
			t.Error("machine should report paused inside halt")
		}
		halts = append(halts, haltRecord{ev.Line, reason, ev.Depth})
		return nil
	})
	m.SetEnabled(true)
	return m, &halts
}

func line(n, depth int) *ExecutionEvent {
	return &ExecutionEvent{Kind: EventLine, Source: "main.lua", Line: n, Depth: depth}
}

func TestStateMachine_DisabledIgnoresBreakpoints(t *testing.T) {
	m, halts := newRecordingMachine(t)
	m.breakpoints.Add("main.lua", 1)
	m.SetEnabled(false)

	if err := m.OnLine(line(1, 1)); err != nil {
		t.Fatal(err)
	}
	if len(*halts) != 0 {
		t.Errorf("halted while disabled: %v", *halts)
	}
	if m.State() != StateDisabled {
		t.Errorf("State() = %v, want disabled", m.State())
	}
}

func TestStateMachine_Breakpoint(t *testing.T) {
	m, halts := newRecordingMachine(t)
	m.breakpoints.Add("main.lua", 2)

	m.OnLine(line(1, 1))
	m.OnLine(line(2, 1))
	m.OnLine(line(3, 1))

	if len(*halts) != 1 || (*halts)[0] != (haltRecord{2, ReasonBreakpoint, 1}) {
		t.Errorf("halts = %v", *halts)
	}
	if m.Paused() {
		t.Error("machine still paused after halt returned")
	}
}

func TestStateMachine_NonLineEventsIgnored(t *testing.T) {
	m, halts := newRecordingMachine(t)
	m.SetAction(ActionStepIn)

	m.Check(&ExecutionEvent{Kind: EventInstruction})
	m.Check(&ExecutionEvent{Kind: EventReturn, Line: 4, Depth: 1})
	if len(*halts) != 0 {
		t.Fatalf("halted on non-line events: %v", *halts)
	}

	m.Check(line(5, 1))
	if len(*halts) != 1 {
		t.Errorf("halts = %v, want one step halt", *halts)
	}
}

func TestStateMachine_StepOverFromHalt(t *testing.T) {
	var m *StateMachine
	var halts []haltRecord
	m = NewStateMachine(breakpoint.NewRegistry(), func(ev *ExecutionEvent, reason string) error {
		halts = append(halts, haltRecord{ev.Line, reason, ev.Depth})
		if len(halts) == 1 {
			m.SetAction(ActionStepOver)
		}
		return nil
	})
	m.SetEnabled(true)
	m.breakpoints.Add("main.lua", 5)

	m.OnLine(line(5, 2))
	m.OnLine(line(10, 3)) // callee
	m.OnLine(line(11, 3))
	m.OnLine(line(6, 2))

	want := []haltRecord{{5, ReasonBreakpoint, 2}, {6, ReasonStep, 2}}
	if len(halts) != len(want) {
		t.Fatalf("halts = %v, want %v", halts, want)
	}
	for i := range want {
		if halts[i] != want[i] {
			t.Errorf("halt %d = %v, want %v", i, halts[i], want[i])
		}
	}
}

func TestStateMachine_StepOverStopsInCaller(t *testing.T) {
	var m *StateMachine
	var halts []haltRecord
	m = NewStateMachine(breakpoint.NewRegistry(), func(ev *ExecutionEvent, reason string) error {
		halts = append(halts, haltRecord{ev.Line, reason, ev.Depth})
		if len(halts) == 1 {
			m.SetAction(ActionStepOver)
		}
		return nil
	})
	m.SetEnabled(true)
	m.breakpoints.Add("main.lua", 12)

	m.OnLine(line(12, 3)) // last line of callee
	m.OnLine(line(7, 2))  // caller continues

	if len(halts) != 2 || halts[1] != (haltRecord{7, ReasonStep, 2}) {
		t.Errorf("halts = %v", halts)
	}
}

func TestStateMachine_StepOut(t *testing.T) {
	var m *StateMachine
	var halts []haltRecord
	m = NewStateMachine(breakpoint.NewRegistry(), func(ev *ExecutionEvent, reason string) error {
		halts = append(halts, haltRecord{ev.Line, reason, ev.Depth})
		if len(halts) == 1 {
			m.SetAction(ActionStepOut)
		}
		return nil
	})
	m.SetEnabled(true)
	m.breakpoints.Add("main.lua", 10)

	m.OnLine(line(10, 3))
	m.OnLine(line(11, 3))
	m.OnLine(line(20, 4))
	m.OnLine(line(6, 2))

	if len(halts) != 2 || halts[1] != (haltRecord{6, ReasonStep, 2}) {
		t.Errorf("halts = %v", halts)
	}
}

func TestStateMachine_StepRequestedWhileRunning(t *testing.T) {
	m, halts := newRecordingMachine(t)

	// No halt yet: the first line event after the request sets the origin.
	m.SetAction(ActionStepOver)
	m.OnLine(line(3, 2))
	m.OnLine(line(9, 3))
	if len(*halts) != 0 {
		t.Fatalf("halted before reaching a shallower line: %v", *halts)
	}

	m.OnLine(line(4, 2))
	if len(*halts) != 1 || (*halts)[0] != (haltRecord{4, ReasonStep, 2}) {
		t.Errorf("halts = %v", *halts)
	}
}

func TestStateMachine_StepInAndPause(t *testing.T) {
	m, halts := newRecordingMachine(t)

	m.SetAction(ActionStepIn)
	m.OnLine(line(1, 1))
	m.SetAction(ActionPause)
	m.OnLine(line(2, 5))
	m.OnLine(line(3, 5))

	want := []haltRecord{{1, ReasonStep, 1}, {2, ReasonPause, 5}}
	if len(*halts) != 2 || (*halts)[0] != want[0] || (*halts)[1] != want[1] {
		t.Errorf("halts = %v, want %v", *halts, want)
	}
	if m.Action() != ActionNone {
		t.Errorf("Action() after halt = %v, want none", m.Action())
	}
}

func TestStateMachine_BreakpointBeatsStep(t *testing.T) {
	m, halts := newRecordingMachine(t)
	m.breakpoints.Add("main.lua", 4)

	m.SetAction(ActionStepOut)
	m.OnLine(line(3, 3)) // origin
	m.OnLine(line(4, 4))

	if len(*halts) != 1 || (*halts)[0].reason != ReasonBreakpoint {
		t.Errorf("halts = %v", *halts)
	}
}

func TestStateMachine_ResumeIsIdempotent(t *testing.T) {
	m, _ := newRecordingMachine(t)
	m.SetAction(ActionStepIn)
	m.Resume()
	m.Resume()
	if m.Paused() {
		t.Error("Resume left machine paused")
	}
	if m.Action() != ActionStepIn {
		t.Errorf("Resume changed the action to %v", m.Action())
	}
}

func TestStateMachine_Reset(t *testing.T) {
	m, _ := newRecordingMachine(t)
	m.SetAction(ActionStepOver)
	m.Reset()

	if m.Enabled() || m.Paused() || m.Action() != ActionNone {
		t.Errorf("Reset left state: enabled=%v paused=%v action=%v", m.Enabled(), m.Paused(), m.Action())
	}
}

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"c":        ActionContinue,
		"step":     ActionStepIn,
		"next":     ActionStepOver,
		"StepOut":  ActionStepOut,
		"pause":    ActionPause,
		"continue": ActionContinue,
	}
	for in, want := range tests {
		got, ok := ParseAction(in)
		if !ok || got != want {
			t.Errorf("ParseAction(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseAction("jump"); ok {
		t.Error("ParseAction accepted an unknown action")
	}
	if ActionStepOver.String() != "stepOver" || StatePaused.String() != "paused" {
		t.Error("unexpected names")
	}
}
