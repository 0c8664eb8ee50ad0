package debug

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luahost/internal/debug/inspect"
)

// Labels used for frames without a resolvable name or source.
const (
	UnknownFunction = "<unknown>"
	MainChunk       = "<main>"
	NativeSource    = "[G]"
)

// maxLocals caps how many slots are read per frame.
const maxLocals = 256

// maxThreads caps how many resuming threads are followed from a coroutine.
const maxThreads = 64

// StackFrameInfo describes one call frame. Index 0 is the innermost frame.
type StackFrameInfo struct {
	Index        int    `json:"index"`
	FunctionName string `json:"function"`
	Source       string `json:"source"`
	Line         int    `json:"line"`
}

// LocalVariableInfo describes one named local in a frame.
type LocalVariableInfo struct {
	Name         string       `json:"name"`
	TypeTag      inspect.Kind `json:"type"`
	DisplayValue string       `json:"value"`
}

// Introspector reads the call stack of an LState. When L is a running
// coroutine the stack continues into the threads that resumed it. It must
// only be used on the goroutine executing that LState.
type Introspector struct {
	L *lua.LState
}

// NewIntrospector creates an introspector over L.
func NewIntrospector(L *lua.LState) *Introspector {
	return &Introspector{L: L}
}

// FrameCount returns the number of frames on the call stack.
func (in *Introspector) FrameCount() int {
	n := 0
	for _, th := range threadChain(in.L) {
		n += frameCount(th)
	}
	return n
}

// threadChain returns L followed by the threads that resumed it, innermost
// first. gopher-lua clears Parent when a coroutine yields or dies, so the
// chain only links threads that are currently running or resuming.
func threadChain(L *lua.LState) []*lua.LState {
	var chain []*lua.LState
	for th := L; th != nil && len(chain) < maxThreads; th = th.Parent {
		for _, seen := range chain {
			if seen == th {
				return chain
			}
		}
		chain = append(chain, th)
	}
	return chain
}

// resumerDepth counts the frames of the threads that resumed L. It runs on
// every poll, so it walks Parent directly instead of building the chain.
func resumerDepth(L *lua.LState) int {
	n := 0
	hops := 0
	for th := L.Parent; th != nil && th != L && hops < maxThreads; th = th.Parent {
		n += frameCount(th)
		hops++
	}
	return n
}

// frameCount tries GetStack at doubling levels, then bisects.
func frameCount(L *lua.LState) int {
	exists := func(level int) bool {
		_, ok := L.GetStack(level)
		return ok
	}
	if !exists(0) {
		return 0
	}
	lo, hi := 0, 1
	for exists(hi) {
		lo = hi
		hi *= 2
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if exists(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 1
}

// Frames lists every frame, innermost first.
func (in *Introspector) Frames() []StackFrameInfo {
	var frames []StackFrameInfo
	for _, th := range threadChain(in.L) {
		n := frameCount(th)
		for level := 0; level < n; level++ {
			dbg, ok := th.GetStack(level)
			if !ok {
				break
			}
			frames = append(frames, describeFrame(th, len(frames), dbg))
		}
	}
	return frames
}

// frame finds the thread and level holding the frame at index.
func (in *Introspector) frame(index int) (*lua.LState, *lua.Debug, bool) {
	for _, th := range threadChain(in.L) {
		n := frameCount(th)
		if index < n {
			dbg, ok := th.GetStack(index)
			return th, dbg, ok
		}
		index -= n
	}
	return nil, nil, false
}

func describeFrame(L *lua.LState, level int, dbg *lua.Debug) StackFrameInfo {
	info := StackFrameInfo{
		Index:        level,
		FunctionName: UnknownFunction,
		Source:       NativeSource,
		Line:         -1,
	}
	if _, err := L.GetInfo("Sln", dbg, lua.LNil); err != nil {
		return info
	}
	if dbg.Source != "" {
		info.Source = dbg.Source
	}
	if dbg.CurrentLine > 0 {
		info.Line = dbg.CurrentLine
	}
	switch {
	case dbg.Name != "":
		info.FunctionName = dbg.Name
	case dbg.LineDefined == 0 && dbg.CurrentLine > 0:
		info.FunctionName = MainChunk
	}
	return info
}

// Locals lists the named locals visible in the frame at frameIndex.
// VM temporaries are omitted.
func (in *Introspector) Locals(frameIndex int) ([]LocalVariableInfo, error) {
	if in.L == nil {
		return nil, ErrNotAttached
	}
	if frameIndex < 0 {
		return nil, ErrInvalidFrame
	}
	th, dbg, ok := in.frame(frameIndex)
	if !ok {
		return nil, ErrInvalidFrame
	}

	var locals []LocalVariableInfo
	for i := 1; i <= maxLocals; i++ {
		name, value := th.GetLocal(dbg, i)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue
		}
		v := inspect.Of(value)
		locals = append(locals, LocalVariableInfo{
			Name:         name,
			TypeTag:      v.Kind(),
			DisplayValue: v.Display(),
		})
	}
	return locals, nil
}

// Snapshot is an immutable copy of the call stack and every frame's locals,
// taken on the executing goroutine when it halts.
type Snapshot struct {
	Source string
	Line   int
	Reason string
	Frames []StackFrameInfo
	locals [][]LocalVariableInfo
}

// Snapshot captures the current stack.
func (in *Introspector) Snapshot() *Snapshot {
	frames := in.Frames()
	snap := &Snapshot{
		Frames: frames,
		locals: make([][]LocalVariableInfo, len(frames)),
	}
	for i := range frames {
		locals, err := in.Locals(i)
		if err == nil {
			snap.locals[i] = locals
		}
	}
	return snap
}

// Locals returns a copy of the locals captured for frameIndex.
func (s *Snapshot) Locals(frameIndex int) ([]LocalVariableInfo, error) {
	if frameIndex < 0 || frameIndex >= len(s.locals) {
		return nil, ErrInvalidFrame
	}
	out := make([]LocalVariableInfo, len(s.locals[frameIndex]))
	copy(out, s.locals[frameIndex])
	return out, nil
}

// CallStack returns a copy of the captured frames.
func (s *Snapshot) CallStack() []StackFrameInfo {
	out := make([]StackFrameInfo, len(s.Frames))
	copy(out, s.Frames)
	return out
}
