package debug

import (
	"context"
	"reflect"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// closedDone is returned from Done once an abort is latched.
var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type location struct {
	source  string
	defined int
	line    int
}

// position is where a thread was at its previous poll.
type position struct {
	loc   location
	depth int // frames of this thread only
	pc    int
}

// latch holds the abort raised in a VM. The main thread and every coroutine
// share one latch, so an abort raised in a coroutine also stops the thread
// that resumed it even when the resume reported the error as a value.
type latch struct {
	err error
}

// hookContext is installed with LState.SetContext. gopher-lua polls Done
// before every instruction; returning a closed channel makes the VM raise
// Err() at the current position. Every poll is turned into an
// ExecutionEvent and dispatched.
//
// All fields are owned by the executing goroutine.
type hookContext struct {
	parent     context.Context
	L          *lua.LState
	dispatcher *Dispatcher
	machine    *StateMachine
	abort      *latch

	last  position
	lines []location // last line seen at each frame of this thread
}

func newHookContext(L *lua.LState, d *Dispatcher, m *StateMachine) *hookContext {
	return &hookContext{
		parent:     context.Background(),
		L:          L,
		dispatcher: d,
		machine:    m,
		abort:      &latch{},
	}
}

// thread returns the hook for a coroutine of the same VM.
func (h *hookContext) thread(co *lua.LState) *hookContext {
	return &hookContext{
		parent:     h.parent,
		L:          co,
		dispatcher: h.dispatcher,
		machine:    h.machine,
		abort:      h.abort,
	}
}

func (h *hookContext) Deadline() (time.Time, bool) { return h.parent.Deadline() }
func (h *hookContext) Value(key any) any           { return h.parent.Value(key) }
func (h *hookContext) Err() error                  { return h.abort.err }

func (h *hookContext) Done() <-chan struct{} {
	if h.abort.err != nil {
		return closedDone
	}
	ev := h.classify()
	if err := h.dispatcher.Dispatch(&ev); err != nil {
		h.abort.err = err
		return closedDone
	}
	return nil
}

// begin clears the latched abort and line history for a new top-level call.
func (h *hookContext) begin() {
	h.abort.err = nil
	h.last = position{}
	h.lines = h.lines[:0]
}

func (h *hookContext) classify() ExecutionEvent {
	ev := ExecutionEvent{Kind: EventInstruction, thread: h.L}
	if !h.machine.Enabled() {
		if len(h.lines) > 0 || h.last != (position{}) {
			h.last = position{}
			h.lines = h.lines[:0]
		}
		return ev
	}

	dbg, ok := h.L.GetStack(0)
	if !ok {
		return ev
	}
	if _, err := h.L.GetInfo("Sl", dbg, lua.LNil); err != nil || dbg.CurrentLine <= 0 {
		return ev
	}
	loc := location{source: dbg.Source, defined: dbg.LineDefined, line: dbg.CurrentLine}
	local := frameCount(h.L)
	pos := position{loc: loc, depth: local, pc: framePC(dbg)}
	last := h.last
	h.last = pos

	ev.Source = loc.source
	ev.Line = loc.line
	ev.Depth = local + resumerDepth(h.L)

	idx := local - 1
	if idx < 0 {
		return ev
	}
	if loc == last.loc && local == last.depth {
		if pos.pc < 0 || pos.pc > last.pc {
			return ev
		}
		// A jump back within the line starts it again.
		return h.lineEvent(ev, dbg, idx, loc)
	}
	if idx < len(h.lines) && h.lines[idx] == loc {
		h.lines = h.lines[:idx+1]
		ev.Kind = EventReturn
		return ev
	}
	return h.lineEvent(ev, dbg, idx, loc)
}

func (h *hookContext) lineEvent(ev ExecutionEvent, dbg *lua.Debug, idx int, loc location) ExecutionEvent {
	for len(h.lines) <= idx {
		h.lines = append(h.lines, location{})
	}
	h.lines = h.lines[:idx+1]
	h.lines[idx] = loc

	ev.Kind = EventLine
	if _, err := h.L.GetInfo("n", dbg, lua.LNil); err == nil {
		ev.Function = dbg.Name
	}
	return ev
}

// pcField is the field path from lua.Debug to the program counter of the
// frame it describes. gopher-lua keeps both unexported; reflection reads
// them without modifying anything. It is nil if the layout is not found.
var pcField = func() []int {
	t := reflect.TypeOf((*lua.Debug)(nil)).Elem()
	frame, ok := t.FieldByName("frame")
	if !ok || frame.Type.Kind() != reflect.Pointer || frame.Type.Elem().Kind() != reflect.Struct {
		return nil
	}
	pc, ok := frame.Type.Elem().FieldByName("Pc")
	if !ok || pc.Type.Kind() != reflect.Int {
		return nil
	}
	return []int{frame.Index[0], pc.Index[0]}
}()

// framePC returns the program counter of the frame dbg describes, or -1
// when it cannot be read. Without it a line repeated by a loop on a single
// line is reported once.
func framePC(dbg *lua.Debug) int {
	if pcField == nil || dbg == nil {
		return -1
	}
	frame := reflect.ValueOf(dbg).Elem().Field(pcField[0])
	if frame.IsNil() {
		return -1
	}
	return int(frame.Elem().Field(pcField[1]).Int())
}
