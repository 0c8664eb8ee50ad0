package debug

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luahost/internal/debug/breakpoint"
	"github.com/dshills/luahost/internal/debug/watchdog"
	"github.com/dshills/luahost/internal/event"
	"github.com/dshills/luahost/internal/event/topic"
	"github.com/dshills/luahost/internal/logging"
)

// Topics published on the optional event bus.
const (
	TopicStopped topic.Topic = "debug.stopped"
	TopicResumed topic.Topic = "debug.resumed"
)

// StopFunc is called on the executing goroutine when it halts.
type StopFunc func(line int, source, reason string)

// StopInfo is the payload of TopicStopped and TopicResumed.
type StopInfo struct {
	Source   string
	Line     int
	Function string
	Reason   string
}

// Debugger is the per-VM execution-control context. One Debugger belongs to
// one host VM; it is created with the VM and Reset when the VM is rebuilt.
type Debugger struct {
	log          *logging.Logger
	bus          event.Bus
	pumpInterval time.Duration
	clock        *watchdog.Clock

	breakpoints *breakpoint.Registry
	termination Termination
	machine     *StateMachine
	dispatcher  *Dispatcher
	sessionID   atomic.Value

	cbMu         sync.RWMutex
	onStop       StopFunc
	onPump       func()
	onShouldExit func() bool

	snapMu   sync.RWMutex
	snapshot *Snapshot

	hook atomic.Pointer[hookContext]
}

// Option configures a Debugger.
type Option func(*debuggerOptions)

type debuggerOptions struct {
	logger       *logging.Logger
	bus          event.Bus
	pumpInterval time.Duration
	clock        *watchdog.Clock
	strategies   []Strategy
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *debuggerOptions) {
		o.logger = l
	}
}

// WithEventBus publishes stop and resume notifications on bus.
func WithEventBus(bus event.Bus) Option {
	return func(o *debuggerOptions) {
		o.bus = bus
	}
}

// WithPumpInterval sets the maximum wait between UI pumps while halted.
func WithPumpInterval(d time.Duration) Option {
	return func(o *debuggerOptions) {
		o.pumpInterval = d
	}
}

// WithWatchdogClock replaces the watchdog clock.
func WithWatchdogClock(c *watchdog.Clock) Option {
	return func(o *debuggerOptions) {
		o.clock = c
	}
}

// WithStrategy adds a strategy that runs after the watchdog and before line
// evaluation.
func WithStrategy(s Strategy) Option {
	return func(o *debuggerOptions) {
		o.strategies = append(o.strategies, s)
	}
}

// New creates a detached, disabled debugger.
func New(opts ...Option) *Debugger {
	o := debuggerOptions{pumpInterval: DefaultPumpInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = watchdog.New()
	}

	d := &Debugger{
		log:          logging.OrDefault(o.logger).WithComponent("debugger"),
		bus:          o.bus,
		pumpInterval: o.pumpInterval,
		clock:        o.clock,
		breakpoints:  breakpoint.NewRegistry(),
	}
	d.sessionID.Store(uuid.NewString())
	d.machine = NewStateMachine(d.breakpoints, d.halt)

	strategies := []Strategy{
		TerminationStrategy(&d.termination),
		WatchdogStrategy(d.clock),
	}
	strategies = append(strategies, o.strategies...)
	strategies = append(strategies, d.machine)
	d.dispatcher = NewDispatcher(strategies...)
	return d
}

// Attach installs the execution hook on L and on every coroutine L creates
// afterwards. L must not be running.
func (d *Debugger) Attach(L *lua.LState) {
	h := newHookContext(L, d.dispatcher, d.machine)
	old := d.hook.Swap(h)
	if old != nil && old.L != L {
		old.L.RemoveContext()
	}
	L.SetContext(h)
	if old == nil || old.L != L {
		hookCoroutines(L, d.attachThread)
	}
}

// attachThread installs the hook on a coroutine of the attached VM. It runs
// on the executing goroutine from inside coroutine.create or wrap.
func (d *Debugger) attachThread(co *lua.LState) {
	if _, ok := co.Context().(*hookContext); ok {
		return
	}
	if h := d.hook.Load(); h != nil {
		co.SetContext(h.thread(co))
	}
}

// Detach removes the execution hook.
func (d *Debugger) Detach() {
	if h := d.hook.Swap(nil); h != nil {
		h.L.RemoveContext()
	}
}

// Attached reports whether a VM is attached.
func (d *Debugger) Attached() bool {
	return d.hook.Load() != nil
}

// BeginCall prepares for a top-level call into the script: it restarts the
// watchdog and clears an abort latched by the previous call. It must be
// called on the executing goroutine.
func (d *Debugger) BeginCall() {
	if h := d.hook.Load(); h != nil {
		h.begin()
	}
	d.clock.Reset()
}

// Abort returns the error that aborted the current or most recent call, if
// the debugger raised it.
func (d *Debugger) Abort() error {
	if h := d.hook.Load(); h != nil {
		return h.abort.err
	}
	return nil
}

// Reset clears breakpoints and session state for a rebuilt VM. Callbacks
// and watchdog configuration are kept.
func (d *Debugger) Reset() {
	d.Detach()
	d.breakpoints.Clear()
	d.termination.Clear()
	d.machine.Reset()
	d.setSnapshot(nil)
	d.sessionID.Store(uuid.NewString())
}

// SessionID identifies the current debug session.
func (d *Debugger) SessionID() string {
	return d.sessionID.Load().(string)
}

// SetEnabled turns breakpoints and stepping on or off. Disabling while
// halted resumes the script.
func (d *Debugger) SetEnabled(enabled bool) {
	d.machine.SetEnabled(enabled)
	d.log.Debug("debugging enabled=%v", enabled)
}

// IsEnabled reports whether debugging is on.
func (d *Debugger) IsEnabled() bool {
	return d.machine.Enabled()
}

// IsPaused reports whether the script is halted.
func (d *Debugger) IsPaused() bool {
	return d.machine.Paused()
}

// State summarizes the session.
func (d *Debugger) State() SessionState {
	return d.machine.State()
}

// SetAction sets the pending action and resumes a halted script.
func (d *Debugger) SetAction(a Action) {
	d.machine.SetAction(a)
}

// Action returns the pending action.
func (d *Debugger) Action() Action {
	return d.machine.Action()
}

// Resume releases a halted script without changing the pending action.
func (d *Debugger) Resume() {
	d.machine.Resume()
}

// AddBreakpoint registers (or re-enables) a breakpoint.
func (d *Debugger) AddBreakpoint(path string, line int) {
	d.breakpoints.Add(path, line)
}

// RemoveBreakpoint deletes the breakpoint at exactly (path, line).
func (d *Debugger) RemoveBreakpoint(path string, line int) bool {
	return d.breakpoints.Remove(path, line)
}

// ClearBreakpoints removes all breakpoints.
func (d *Debugger) ClearBreakpoints() {
	d.breakpoints.Clear()
}

// ListBreakpoints returns a copy of all breakpoints.
func (d *Debugger) ListBreakpoints() []breakpoint.Breakpoint {
	return d.breakpoints.List()
}

// Breakpoints exposes the registry.
func (d *Debugger) Breakpoints() *breakpoint.Registry {
	return d.breakpoints
}

// CallStack returns the frames captured at the current halt.
func (d *Debugger) CallStack() ([]StackFrameInfo, error) {
	snap := d.currentSnapshot()
	if snap == nil {
		return nil, ErrNotPaused
	}
	return snap.CallStack(), nil
}

// Locals returns the locals captured for frameIndex at the current halt.
func (d *Debugger) Locals(frameIndex int) ([]LocalVariableInfo, error) {
	snap := d.currentSnapshot()
	if snap == nil {
		return nil, ErrNotPaused
	}
	return snap.Locals(frameIndex)
}

// Introspector returns a live introspector for the attached VM. It may only
// be used on the executing goroutine.
func (d *Debugger) Introspector() *Introspector {
	if h := d.hook.Load(); h != nil {
		return NewIntrospector(h.L)
	}
	return &Introspector{}
}

// SetWatchdog configures the per-call time budget.
func (d *Debugger) SetWatchdog(enabled bool, timeoutSeconds float64) {
	d.clock.Configure(enabled, timeoutSeconds)
}

// Watchdog exposes the watchdog clock.
func (d *Debugger) Watchdog() *watchdog.Clock {
	return d.clock
}

// SetStopCallback sets the function called when the script halts.
func (d *Debugger) SetStopCallback(fn StopFunc) {
	d.cbMu.Lock()
	d.onStop = fn
	d.cbMu.Unlock()
}

// SetUIPumpCallback sets the function run repeatedly while halted.
func (d *Debugger) SetUIPumpCallback(fn func()) {
	d.cbMu.Lock()
	d.onPump = fn
	d.cbMu.Unlock()
}

// SetShouldExitCallback sets the predicate polled while halted; when it
// returns true the script is aborted with ErrExitRequested.
func (d *Debugger) SetShouldExitCallback(fn func() bool) {
	d.cbMu.Lock()
	d.onShouldExit = fn
	d.cbMu.Unlock()
}

// RequestTermination asks the script to stop. A running script is aborted
// at its next instruction; a halted one as soon as the pause loop wakes.
func (d *Debugger) RequestTermination() {
	d.termination.Request()
	d.machine.Wake()
	d.log.Info("termination requested")
}

// TerminationRequested reports whether a request is still undelivered.
func (d *Debugger) TerminationRequested() bool {
	return d.termination.Pending()
}

// ConsumeTermination takes an undelivered request, for hosts whose script
// is between calls and so never reaches the hook.
func (d *Debugger) ConsumeTermination() bool {
	return d.termination.Consume()
}

// ClearTermination drops an undelivered termination request.
func (d *Debugger) ClearTermination() {
	d.termination.Clear()
}

// halt runs on the executing goroutine for every stop decided by the
// state machine.
func (d *Debugger) halt(ev *ExecutionEvent, reason string) error {
	in := d.Introspector()
	if ev.thread != nil {
		in = NewIntrospector(ev.thread)
	}
	snap := in.Snapshot()
	snap.Source, snap.Line, snap.Reason = ev.Source, ev.Line, reason
	d.setSnapshot(snap)

	info := StopInfo{Source: ev.Source, Line: ev.Line, Function: ev.Function, Reason: reason}
	d.log.WithFields(map[string]any{"source": ev.Source, "line": ev.Line}).Info("paused (%s)", reason)
	d.publish(TopicStopped, info)
	d.notifyStop(ev, reason)

	err := waitWhileHalted(d, d.machine.Wakeups(), d.pumpInterval)

	d.setSnapshot(nil)
	// Time spent halted does not count against the watchdog.
	d.clock.Reset()
	d.publish(TopicResumed, info)
	if err != nil {
		d.log.Info("leaving pause: %v", err)
	}
	return err
}

func (d *Debugger) notifyStop(ev *ExecutionEvent, reason string) {
	d.cbMu.RLock()
	fn := d.onStop
	d.cbMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("stop callback panicked: %v", r)
		}
	}()
	fn(ev.Line, ev.Source, reason)
}

func (d *Debugger) publish(t topic.Topic, info StopInfo) {
	if d.bus == nil {
		return
	}
	if err := event.Publish(context.Background(), d.bus, t, info, "debugger", d.SessionID()); err != nil {
		d.log.Warn("publish %s: %v", t, err)
	}
}

func (d *Debugger) pumpUI() {
	d.cbMu.RLock()
	fn := d.onPump
	d.cbMu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("UI pump panicked: %v", r)
		}
	}()
	fn()
}

func (d *Debugger) exitRequested() bool {
	d.cbMu.RLock()
	fn := d.onShouldExit
	d.cbMu.RUnlock()
	return fn != nil && fn()
}

func (d *Debugger) consumeTermination() bool {
	return d.termination.Consume()
}

func (d *Debugger) halted() bool {
	return d.machine.Paused()
}

func (d *Debugger) setSnapshot(s *Snapshot) {
	d.snapMu.Lock()
	d.snapshot = s
	d.snapMu.Unlock()
}

func (d *Debugger) currentSnapshot() *Snapshot {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	return d.snapshot
}
