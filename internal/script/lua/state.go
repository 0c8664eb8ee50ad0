package lua

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the per-call instruction budget. Zero disables it.
const DefaultInstructionLimit = 0

// State wraps an LState with the sandbox and call helpers used by the
// script engine.
//
// gopher-lua's LState is not goroutine-safe. All operations on a State must
// happen on the goroutine that executes scripts; see Executor.
type State struct {
	L *lua.LState

	mu sync.Mutex

	instructionLimit int64
	output           io.Writer
	loader           ModuleLoader

	sandbox *Sandbox
	closed  bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithInstructionLimit sets the maximum instructions per top-level call.
func WithInstructionLimit(limit int64) StateOption {
	return func(s *State) {
		s.instructionLimit = limit
	}
}

// WithOutput redirects the script's print function.
func WithOutput(w io.Writer) StateOption {
	return func(s *State) {
		s.output = w
	}
}

// WithModuleLoader resolves require calls for non built-in modules.
func WithModuleLoader(loader ModuleLoader) StateOption {
	return func(s *State) {
		s.loader = loader
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		instructionLimit: DefaultInstructionLimit,
		output:           io.Discard,
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		IncludeGoStackTrace: false,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L, state.instructionLimit)
	state.sandbox.SetOutput(state.output)
	state.sandbox.SetModuleLoader(state.loader)
	state.sandbox.Install()

	return state, nil
}

// openSafeLibraries opens the standard libraries scripts may use. io, os,
// debug and package are never opened.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)
}

// Load compiles src as a chunk named chunkName without running it.
func (s *State) Load(src []byte, chunkName string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.L.Load(bytes.NewReader(src), chunkName)
}

// DoString compiles and runs code. It is meant for tests and the console.
func (s *State) DoString(code string) error {
	fn, err := s.Load([]byte(code), "<string>")
	if err != nil {
		return err
	}
	_, err = s.PCall(fn, nil)
	return err
}

// PCall calls fn in protected mode. handler, when non-nil, runs with the
// error value while the failing stack is still intact; its return value
// becomes the error object. The instruction counter is reset first.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) PCall(fn lua.LValue, handler *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: got %s", ErrFunctionNotFound, fn.Type())
	}

	s.sandbox.ResetInstructionCount()

	stackTop := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}

	var callErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("lua panic: %v", r)
				s.L.SetTop(stackTop)
			}
		}()
		callErr = s.L.PCall(len(args), lua.MultRet, handler)
	}()
	if callErr != nil {
		return nil, callErr
	}

	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results := make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.Pop(nRet)
	return results, nil
}

// Function returns the global function name, or ErrFunctionNotFound.
func (s *State) Function(name string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	fn, ok := s.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// RegisterModule installs funcs as the global table name.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) *lua.LTable {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
	return mod
}

// LuaState returns the underlying gopher-lua state. Callers must respect
// the single-goroutine rule.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// Sandbox returns the installed sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
