package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/event"
	"github.com/dshills/luahost/internal/event/topic"
	"github.com/dshills/luahost/internal/logging"
	slua "github.com/dshills/luahost/internal/script/lua"
	"github.com/dshills/luahost/internal/vfs"
)

// TopicScriptError is published with a ScriptError payload for every
// failed load or top-level call.
const TopicScriptError topic.Topic = "script.error"

// Engine runs one cartridge's scripts.
type Engine struct {
	fs  vfs.FS
	log *logging.Logger
	bus event.Bus
	dbg *debug.Debugger

	output           io.Writer
	instructionLimit int64
	globals          map[string]any
	debugOpts        []debug.Option
	started          time.Time

	state   *slua.State
	entry   string
	modules map[string]glua.LValue
	loading []string // modules being executed, outermost first
	closed  bool
}

// New creates an engine reading scripts from fsys. No script is loaded.
func New(fsys vfs.FS, opts ...Option) (*Engine, error) {
	if fsys == nil {
		return nil, errors.New("engine: nil file system")
	}

	e := &Engine{
		fs:      fsys,
		output:  io.Discard,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	root := logging.OrDefault(e.log)
	e.log = root.WithComponent("engine")

	dopts := []debug.Option{debug.WithLogger(root), debug.WithEventBus(e.bus)}
	if e.instructionLimit > 0 {
		dopts = append(dopts, debug.WithStrategy(debug.BudgetStrategy(budget{e}, slua.ErrInstructionLimit)))
	}
	e.dbg = debug.New(append(dopts, e.debugOpts...)...)

	if err := e.open(); err != nil {
		return nil, err
	}
	return e, nil
}

// open creates a fresh VM and attaches the debugger to it.
func (e *Engine) open() error {
	state, err := slua.NewState(
		slua.WithInstructionLimit(e.instructionLimit),
		slua.WithOutput(e.output),
		slua.WithModuleLoader(e.loadModule),
	)
	if err != nil {
		return fmt.Errorf("create lua state: %w", err)
	}

	e.state = state
	e.modules = make(map[string]glua.LValue)
	e.loading = e.loading[:0]
	e.installAPI()
	e.dbg.Attach(state.LuaState())
	return nil
}

// installAPI exposes the host tables scripts can use.
func (e *Engine) installAPI() {
	L := e.state.LuaState()
	if e.globals != nil {
		b := slua.NewBridge(L)
		if t, ok := b.ToLuaValue(e.globals).(*glua.LTable); ok {
			L.SetGlobal("cart", b.ReadOnly(t))
		}
	}

	scriptLog := e.log.WithComponent("script")
	e.state.RegisterModule("sys", map[string]glua.LGFunction{
		"log": func(L *glua.LState) int {
			scriptLog.Info("%s", L.ToStringMeta(L.Get(1)).String())
			return 0
		},
		"time": func(L *glua.LState) int {
			L.Push(glua.LNumber(time.Since(e.started).Seconds()))
			return 1
		},
	})
}

// Debugger returns the execution-control context of this engine's VM. It
// survives Reload.
func (e *Engine) Debugger() *debug.Debugger {
	return e.dbg
}

// State returns the current VM. It changes on Reload.
func (e *Engine) State() *slua.State {
	return e.state
}

// Entry returns the virtual path of the loaded entry script.
func (e *Engine) Entry() string {
	return e.entry
}

// LoadScript compiles and runs the script at path, making it the entry
// script for Reload.
func (e *Engine) LoadScript(path string) error {
	if e.closed {
		return ErrClosed
	}
	clean, err := vfs.Clean(path)
	if err != nil {
		return err
	}
	src, err := e.fs.ReadFile(clean)
	if err != nil {
		e.log.Error("Failed to read script: %s", clean)
		return fmt.Errorf("read %s: %w", clean, err)
	}

	fn, err := e.state.Load(src, clean)
	if err != nil {
		se := &ScriptError{Op: "load", Kind: KindCompile, Message: err.Error(), Err: err}
		e.report(se)
		return se
	}

	e.entry = clean
	e.loading = append(e.loading[:0], clean)
	defer func() { e.loading = e.loading[:0] }()

	_, err = e.protectedCall("load", fn)
	return err
}

// CallInit calls init(). A script without init is only warned about.
func (e *Engine) CallInit() error {
	fn, ok, err := e.lifecycle("init")
	if err != nil {
		return err
	}
	if !ok {
		e.log.Warn("init() function not found in script")
		return nil
	}
	_, err = e.protectedCall("init", fn)
	return err
}

// CallUpdate calls update(dt). A script without update is skipped.
func (e *Engine) CallUpdate(dt float64) error {
	fn, ok, err := e.lifecycle("update")
	if err != nil || !ok {
		return err
	}
	_, err = e.protectedCall("update", fn, glua.LNumber(dt))
	return err
}

// CallDraw calls draw(alpha). A script without draw is skipped.
func (e *Engine) CallDraw(alpha float64) error {
	fn, ok, err := e.lifecycle("draw")
	if err != nil || !ok {
		return err
	}
	_, err = e.protectedCall("draw", fn, glua.LNumber(alpha))
	return err
}

// Call calls the global function name with Go arguments and returns its
// results as Go values.
func (e *Engine) Call(name string, args ...any) ([]any, error) {
	if e.closed {
		return nil, ErrClosed
	}
	fn, err := e.state.Function(name)
	if err != nil {
		return nil, err
	}

	b := slua.NewBridge(e.state.LuaState())
	luaArgs := make([]glua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = b.ToLuaValue(arg)
	}

	results, err := e.protectedCall(name, fn, luaArgs...)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = b.ToGoValue(r)
	}
	return out, nil
}

// HasFunction reports whether the script defines the global function name.
func (e *Engine) HasFunction(name string) bool {
	if e.closed {
		return false
	}
	_, err := e.state.Function(name)
	return err == nil
}

func (e *Engine) lifecycle(name string) (*glua.LFunction, bool, error) {
	if e.closed {
		return nil, false, ErrClosed
	}
	if e.entry == "" {
		return nil, false, ErrNotLoaded
	}
	fn, err := e.state.Function(name)
	if err != nil {
		return nil, false, nil
	}
	return fn, true, nil
}

// Terminate asks the running or paused script to stop. It is safe to call
// from any goroutine.
func (e *Engine) Terminate() {
	e.dbg.RequestTermination()
}

// Reload rebuilds the VM, runs the entry script again and calls init. The
// debugger is Reset, which clears breakpoints and session state; whether
// debugging is enabled carries over.
func (e *Engine) Reload() error {
	if e.closed {
		return ErrClosed
	}
	if e.entry == "" {
		return ErrNotLoaded
	}

	enabled := e.dbg.IsEnabled()
	e.dbg.Reset()
	if err := e.state.Close(); err != nil {
		e.log.Warn("close previous state: %v", err)
	}
	if err := e.open(); err != nil {
		return err
	}
	e.dbg.SetEnabled(enabled)

	e.log.Info("reloading %s", e.entry)
	if err := e.LoadScript(e.entry); err != nil {
		return err
	}
	return e.CallInit()
}

// Close releases the VM. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.dbg.Detach()
	return e.state.Close()
}

// protectedCall runs fn as a top-level call. The error handler records the
// script stack before it unwinds.
func (e *Engine) protectedCall(op string, fn glua.LValue, args ...glua.LValue) ([]glua.LValue, error) {
	var stack []debug.StackFrameInfo
	handler := e.state.LuaState().NewFunction(func(L *glua.LState) int {
		frames := debug.NewIntrospector(L).Frames()
		if len(frames) > 0 {
			// Level 0 is this handler.
			frames = frames[1:]
		}
		for i := range frames {
			frames[i].Index = i
		}
		stack = frames
		L.Push(L.Get(1))
		return 1
	})

	e.dbg.BeginCall()
	results, err := e.state.PCall(fn, handler, args...)
	if err == nil {
		return results, nil
	}

	se := &ScriptError{Op: op, Message: errorMessage(err), Stack: stack, Err: err}
	if abort := e.dbg.Abort(); abort != nil {
		se.Kind = classify(abort)
		se.Err = abort
	}
	e.report(se)
	return nil, se
}

func errorMessage(err error) string {
	var apiErr *glua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// report logs se once and publishes it.
func (e *Engine) report(se *ScriptError) {
	switch se.Kind {
	case KindRuntime:
		e.log.Error("Script Runtime Error: %s", se.Message)
		for _, f := range se.Stack {
			e.log.Error("%s", formatFrame(f))
		}
	case KindCompile:
		e.log.Error("Script Error: %s", se.Message)
	default:
		e.log.Warn("script %s aborted (%s): %s", se.Op, se.Kind, se.Message)
		for _, f := range se.Stack {
			e.log.Debug("%s", formatFrame(f))
		}
	}

	if err := event.Publish(context.Background(), e.bus, TopicScriptError, *se, "engine", e.dbg.SessionID()); err != nil {
		e.log.Warn("publish %s: %v", TopicScriptError, err)
	}
}

// budget forwards instruction counting to the current VM's sandbox.
type budget struct {
	e *Engine
}

func (b budget) IncrementInstructions(n int64) bool {
	if b.e.state == nil {
		return false
	}
	return b.e.state.Sandbox().IncrementInstructions(n)
}
