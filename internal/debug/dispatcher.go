package debug

import (
	"sync/atomic"

	"github.com/dshills/luahost/internal/debug/watchdog"
)

// Strategy inspects an execution event. A non-nil error aborts the script.
type Strategy interface {
	Check(ev *ExecutionEvent) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ev *ExecutionEvent) error

// Check calls f(ev).
func (f StrategyFunc) Check(ev *ExecutionEvent) error {
	return f(ev)
}

// Dispatcher runs strategies in order and stops at the first error.
type Dispatcher struct {
	strategies []Strategy
}

// NewDispatcher creates a dispatcher over strategies, evaluated in order.
func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// Dispatch delivers ev to each strategy.
func (d *Dispatcher) Dispatch(ev *ExecutionEvent) error {
	for _, s := range d.strategies {
		if err := s.Check(ev); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of strategies.
func (d *Dispatcher) Len() int {
	return len(d.strategies)
}

// Termination is a one-shot request flag set by control goroutines and
// consumed by the executing goroutine.
type Termination struct {
	requested atomic.Bool
}

// Request marks termination as pending.
func (t *Termination) Request() {
	t.requested.Store(true)
}

// Pending reports whether a request is waiting to be delivered.
func (t *Termination) Pending() bool {
	return t.requested.Load()
}

// Consume clears a pending request and reports whether there was one.
func (t *Termination) Consume() bool {
	return t.requested.CompareAndSwap(true, false)
}

// Clear drops any pending request.
func (t *Termination) Clear() {
	t.requested.Store(false)
}

// TerminationStrategy aborts once per termination request.
func TerminationStrategy(t *Termination) Strategy {
	return StrategyFunc(func(*ExecutionEvent) error {
		if t.Consume() {
			return ErrTerminationRequested
		}
		return nil
	})
}

// WatchdogStrategy aborts while the clock is expired.
func WatchdogStrategy(c *watchdog.Clock) Strategy {
	return StrategyFunc(func(*ExecutionEvent) error {
		if c.Expired() {
			return ErrWatchdogTimeout
		}
		return nil
	})
}

// InstructionCounter counts executed instructions against a limit.
type InstructionCounter interface {
	// IncrementInstructions adds n and reports whether the limit is exceeded.
	IncrementInstructions(n int64) bool
}

// BudgetStrategy counts one instruction per event and aborts with limitErr
// once the counter reports the limit exceeded.
func BudgetStrategy(c InstructionCounter, limitErr error) Strategy {
	return StrategyFunc(func(*ExecutionEvent) error {
		if c.IncrementInstructions(1) {
			return limitErr
		}
		return nil
	})
}
