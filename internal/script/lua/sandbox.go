package lua

import (
	"io"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// ModuleLoader resolves a require call the sandbox does not serve itself.
// It runs on the executing goroutine with L positioned inside require.
type ModuleLoader func(L *lua.LState, name string) (lua.LValue, error)

// builtinModules are the libraries require hands back directly.
var builtinModules = map[string]bool{
	"string":    true,
	"table":     true,
	"math":      true,
	"coroutine": true,
}

// Sandbox restricts what scripts can reach and counts their instructions.
type Sandbox struct {
	L *lua.LState

	instructionLimit int64
	instructionCount atomic.Int64

	output io.Writer
	loader ModuleLoader
}

// NewSandbox creates a sandbox for L. A non-positive limit disables
// instruction counting.
func NewSandbox(L *lua.LState, instructionLimit int64) *Sandbox {
	return &Sandbox{
		L:                L,
		instructionLimit: instructionLimit,
		output:           io.Discard,
	}
}

// SetOutput sets where print writes. nil discards output.
func (s *Sandbox) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	s.output = w
}

// SetModuleLoader sets the fallback for require.
func (s *Sandbox) SetModuleLoader(loader ModuleLoader) {
	s.loader = loader
}

// Install removes unsafe globals and installs print and require.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	s.L.SetGlobal("require", s.L.NewFunction(s.require))
}

// print writes its arguments tab-separated with a trailing newline.
func (s *Sandbox) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	_, _ = io.WriteString(s.output, strings.Join(parts, "\t")+"\n")
	return 0
}

func (s *Sandbox) require(L *lua.LState) int {
	name := L.CheckString(1)

	if builtinModules[name] {
		L.Push(L.GetGlobal(name))
		return 1
	}
	if s.loader == nil {
		L.RaiseError("module %q is not available", name)
		return 0
	}

	mod, err := s.loader(L, name)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(mod)
	return 1
}

// ResetInstructionCount resets the instruction counter.
func (s *Sandbox) ResetInstructionCount() {
	s.instructionCount.Store(0)
}

// InstructionCount returns the current instruction count.
func (s *Sandbox) InstructionCount() int64 {
	return s.instructionCount.Load()
}

// InstructionLimit returns the configured limit.
func (s *Sandbox) InstructionLimit() int64 {
	return s.instructionLimit
}

// IncrementInstructions adds n and reports whether the limit is exceeded.
func (s *Sandbox) IncrementInstructions(n int64) bool {
	if s.instructionLimit <= 0 {
		return false
	}
	return s.instructionCount.Add(n) > s.instructionLimit
}
