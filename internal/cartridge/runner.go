package cartridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/engine"
	"github.com/dshills/luahost/internal/event"
	"github.com/dshills/luahost/internal/logging"
	slua "github.com/dshills/luahost/internal/script/lua"
)

const (
	// DefaultFrameRate is the update rate in Hz.
	DefaultFrameRate = 60

	// maxUpdatesPerFrame bounds catch-up updates after a slow frame.
	maxUpdatesPerFrame = 4

	// maxFrameTime clamps the time credited to one frame, in seconds, so a
	// long halt in the debugger does not trigger a burst of updates.
	maxFrameTime = 0.25
)

// errFrameLimit ends Run after the configured number of frames.
var errFrameLimit = errors.New("frame limit reached")

// Stats counts runner activity.
type Stats struct {
	Frames     int64
	Updates    int64
	OverBudget int64 // updates slower than caps.cpu_ms_per_update
	Reloads    int64
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerOptions)

type runnerOptions struct {
	logger      *logging.Logger
	bus         event.Bus
	frameRate   int
	maxFrames   int
	stopOnEntry bool
	hotReload   bool
	debounce    time.Duration
	engineOpts  []engine.Option
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.logger = l
	}
}

// WithEventBus sets the bus for state, debugger and script error events.
func WithEventBus(bus event.Bus) RunnerOption {
	return func(o *runnerOptions) {
		o.bus = bus
	}
}

// WithFrameRate sets the update rate in Hz.
func WithFrameRate(hz int) RunnerOption {
	return func(o *runnerOptions) {
		if hz > 0 {
			o.frameRate = hz
		}
	}
}

// WithMaxFrames stops Run after n frames; 0 runs until stopped.
func WithMaxFrames(n int) RunnerOption {
	return func(o *runnerOptions) {
		o.maxFrames = n
	}
}

// WithStopOnEntry halts at the first line of the entry script.
func WithStopOnEntry(stop bool) RunnerOption {
	return func(o *runnerOptions) {
		o.stopOnEntry = stop
	}
}

// WithHotReload reloads the cartridge when a .lua file under its root
// changes. It has no effect for cartridges not on disk.
func WithHotReload(enabled bool, debounce time.Duration) RunnerOption {
	return func(o *runnerOptions) {
		o.hotReload = enabled
		o.debounce = debounce
	}
}

// WithEngineOptions passes options to the script engine.
func WithEngineOptions(opts ...engine.Option) RunnerOption {
	return func(o *runnerOptions) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Runner drives a cartridge's lifecycle on an executing goroutine.
type Runner struct {
	cart   *Cartridge
	eng    *engine.Engine
	exec   *slua.Executor
	log    *logging.Logger
	bus    event.Bus
	opts   runnerOptions
	states *stateMachine
	subs   []event.Subscription

	started atomic.Bool
	cancel  atomic.Pointer[context.CancelFunc]

	// owned by the executing goroutine
	acc  float64
	prev time.Time

	reloadPending atomic.Bool
	frames        atomic.Int64
	updates       atomic.Int64
	overBudget    atomic.Int64
	reloads       atomic.Int64
}

// NewRunner creates a runner for cart. The engine and debugger exist from
// here on, so front ends can set breakpoints and callbacks before Run.
func NewRunner(cart *Cartridge, opts ...RunnerOption) (*Runner, error) {
	o := runnerOptions{frameRate: DefaultFrameRate}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}
	root := logging.OrDefault(o.logger)

	engOpts := []engine.Option{
		engine.WithLogger(root),
		engine.WithEventBus(o.bus),
		engine.WithGlobals(cart.Manifest.Globals()),
	}
	eng, err := engine.New(cart.FS, append(engOpts, o.engineOpts...)...)
	if err != nil {
		return nil, err
	}

	log := root.WithComponent("cartridge").WithField("cartridge", cart.Manifest.ID)
	r := &Runner{
		cart:   cart,
		eng:    eng,
		exec:   slua.NewExecutor(0),
		log:    log,
		bus:    o.bus,
		opts:   o,
		states: newStateMachine(cart.Manifest.ID, o.bus, log),
	}

	if err := r.subscribe(); err != nil {
		_ = eng.Close()
		return nil, err
	}
	return r, nil
}

// subscribe mirrors debugger halts into the Paused state.
func (r *Runner) subscribe() error {
	stopped, err := r.bus.Subscribe(debug.TopicStopped, func(context.Context, event.Envelope) error {
		r.states.pause()
		return nil
	})
	if err != nil {
		return err
	}
	resumed, err := r.bus.Subscribe(debug.TopicResumed, func(context.Context, event.Envelope) error {
		r.states.unpause()
		return nil
	})
	if err != nil {
		_ = r.bus.Unsubscribe(stopped)
		return err
	}
	r.subs = []event.Subscription{stopped, resumed}
	return nil
}

// Cartridge returns the cartridge being run.
func (r *Runner) Cartridge() *Cartridge {
	return r.cart
}

// Engine returns the script engine. Its methods must only be called on the
// executing goroutine; use Execute from elsewhere.
func (r *Runner) Engine() *engine.Engine {
	return r.eng
}

// Debugger returns the execution-control API. It is safe for concurrent use.
func (r *Runner) Debugger() *debug.Debugger {
	return r.eng.Debugger()
}

// Bus returns the event bus.
func (r *Runner) Bus() event.Bus {
	return r.bus
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return r.states.get()
}

// Stats returns activity counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Frames:     r.frames.Load(),
		Updates:    r.updates.Load(),
		OverBudget: r.overBudget.Load(),
		Reloads:    r.reloads.Load(),
	}
}

// Execute runs fn on the executing goroutine between frames.
func (r *Runner) Execute(ctx context.Context, fn func() error) error {
	return r.exec.Execute(ctx, fn)
}

// Terminate stops the script at its next instruction, or immediately if it
// is paused, and ends Run.
func (r *Runner) Terminate() {
	r.eng.Terminate()
}

// Stop ends Run without interrupting a running call.
func (r *Runner) Stop() {
	if cancel := r.cancel.Load(); cancel != nil {
		(*cancel)()
	}
}

// Reload queues a reload of the cartridge. Requests made while one is
// pending are merged.
func (r *Runner) Reload() error {
	if !r.reloadPending.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.exec.ExecuteAsync(r.reload); err != nil {
		r.reloadPending.Store(false)
		return err
	}
	if r.Debugger().IsPaused() {
		r.log.Info("reload queued until the script resumes")
	}
	return nil
}

// Run loads the cartridge and runs frames until ctx ends, the frame limit
// is reached, the script is terminated, or it faults (without hot reload).
// A fault is returned as the *engine.ScriptError; the other endings return
// nil. Run can be called once.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel.Store(&cancel)

	// A paused script leaves the pause loop once the host is shutting down.
	r.Debugger().SetShouldExitCallback(func() bool { return ctx.Err() != nil })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.exec.Run(ctx)
	}()
	defer func() {
		cancel()
		// A call still running on the executing goroutine must return
		// before the VM is closed.
		r.eng.Terminate()
		r.exec.Close()
		wg.Wait()
		// The executing goroutine is gone; the VM can be released here.
		_ = r.eng.Close()
		for _, sub := range r.subs {
			_ = r.bus.Unsubscribe(sub)
		}
	}()

	if r.opts.hotReload && r.cart.Root != "" {
		stop, err := r.watch(ctx)
		if err != nil {
			r.log.Warn("hot reload disabled: %v", err)
		} else {
			defer stop()
		}
	}

	if err := r.exec.Execute(ctx, r.start); err != nil {
		if done, result := r.handle(err); done {
			return result
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(r.opts.frameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.finish(nil)
		case <-ticker.C:
		}

		if err := r.exec.Execute(ctx, r.frame); err != nil {
			if done, result := r.handle(err); done {
				return result
			}
		}
	}
}

// handle decides whether an error from the executing goroutine ends Run.
func (r *Runner) handle(err error) (bool, error) {
	switch {
	case errors.Is(err, errFrameLimit):
		r.log.Info("stopping after %d frames", r.frames.Load())
		return true, r.finish(nil)
	case errors.Is(err, debug.ErrTerminationRequested):
		r.log.Info("script terminated")
		return true, r.finish(nil)
	case errors.Is(err, debug.ErrExitRequested),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		slua.IsClosedErr(err):
		return true, r.finish(nil)
	}

	_ = r.states.set(StateFaulted, err)
	if r.opts.hotReload && r.cart.Root != "" {
		r.log.Warn("cartridge faulted; waiting for a change to reload")
		return false, nil
	}
	return true, err
}

// finish records the final state.
func (r *Runner) finish(err error) error {
	if r.State() != StateFaulted {
		_ = r.states.set(StateStopped, nil)
	}
	return err
}

// start runs on the executing goroutine.
func (r *Runner) start() error {
	if err := r.states.set(StateLoading, nil); err != nil {
		return err
	}

	if r.opts.stopOnEntry {
		dbg := r.Debugger()
		dbg.SetEnabled(true)
		dbg.SetAction(debug.ActionStepIn)
	}

	r.log.Info("loading %s (%s)", r.cart.Manifest.Title, r.cart.DisplayPath(r.cart.EntryPath()))
	if err := r.eng.LoadScript(r.cart.EntryPath()); err != nil {
		return err
	}
	return r.initialize()
}

// initialize calls init and enters Running.
func (r *Runner) initialize() error {
	if err := r.eng.CallInit(); err != nil {
		return err
	}
	_ = r.states.set(StateInitialized, nil)
	r.acc = 0
	r.prev = time.Now()
	return r.states.set(StateRunning, nil)
}

// frame runs on the executing goroutine.
func (r *Runner) frame() error {
	if err := r.terminated(); err != nil {
		return err
	}
	if r.State() == StateFaulted {
		return nil
	}

	now := time.Now()
	elapsed := now.Sub(r.prev).Seconds()
	r.prev = now
	if err := r.advance(elapsed); err != nil {
		return err
	}
	// A cartridge without update or draw never enters the VM.
	if err := r.terminated(); err != nil {
		return err
	}

	n := r.frames.Add(1)
	if r.opts.maxFrames > 0 && n >= int64(r.opts.maxFrames) {
		return errFrameLimit
	}
	return nil
}

// terminated delivers a termination request no script call picked up.
func (r *Runner) terminated() error {
	if r.Debugger().ConsumeTermination() {
		return debug.ErrTerminationRequested
	}
	return nil
}

// advance runs the fixed-step updates covering elapsed seconds, then draws
// once with the interpolation factor between the last two updates.
func (r *Runner) advance(elapsed float64) error {
	dt := 1.0 / float64(r.opts.frameRate)
	if elapsed > maxFrameTime {
		elapsed = maxFrameTime
	}
	r.acc += elapsed

	budget := time.Duration(r.cart.Manifest.Caps.CPUMsPerUpdate * float64(time.Millisecond))
	for n := 0; r.acc >= dt && n < maxUpdatesPerFrame; n++ {
		began := time.Now()
		if err := r.eng.CallUpdate(dt); err != nil {
			return err
		}
		r.updates.Add(1)
		if took := time.Since(began); budget > 0 && took > budget {
			r.overBudget.Add(1)
			r.log.Debug("update took %v (budget %v)", took, budget)
		}
		r.acc -= dt
	}
	if r.acc > dt*maxUpdatesPerFrame {
		// Drop time the host cannot catch up on.
		r.acc = 0
	}

	alpha := r.acc / dt
	if alpha > 1 {
		alpha = 1
	}
	return r.eng.CallDraw(alpha)
}

// reload runs on the executing goroutine.
func (r *Runner) reload() error {
	r.reloadPending.Store(false)
	if err := r.states.set(StateLoading, nil); err != nil {
		return err
	}
	r.reloads.Add(1)

	err := r.eng.Reload()
	if err == nil {
		err = r.afterReload()
	}
	if err != nil {
		if errors.Is(err, debug.ErrTerminationRequested) || errors.Is(err, debug.ErrExitRequested) {
			r.Stop()
			return err
		}
		_ = r.states.set(StateFaulted, err)
		return err
	}
	r.log.Info("reloaded %s", r.cart.Manifest.ID)
	return nil
}

func (r *Runner) afterReload() error {
	_ = r.states.set(StateInitialized, nil)
	r.acc = 0
	r.prev = time.Now()
	return r.states.set(StateRunning, nil)
}
