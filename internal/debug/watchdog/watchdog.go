// Package watchdog measures how long the current script entry point has been
// running and reports when it exceeds a configured budget.
package watchdog

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultTimeout is the budget used when none is configured.
const DefaultTimeout = 500 * time.Millisecond

// Clock is a restartable stopwatch with an on/off switch.
//
// Configure may be called from any goroutine. Reset is called by the
// executing goroutine at the start of every top-level script call and when
// execution resumes from a debugger pause.
type Clock struct {
	enabled atomic.Bool
	timeout atomic.Int64 // nanoseconds
	started atomic.Int64 // unix nanoseconds, 0 before the first Reset
	now     func() time.Time
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow replaces the time source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) {
		c.now = now
	}
}

// New creates a disabled clock with the default timeout.
func New(opts ...Option) *Clock {
	c := &Clock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.timeout.Store(int64(DefaultTimeout))
	return c
}

// Configure switches the clock on or off and sets the budget in seconds.
// A non-positive timeout keeps the current budget; one too large for a
// time.Duration is clamped to the largest.
func (c *Clock) Configure(enabled bool, timeoutSeconds float64) {
	if timeoutSeconds > 0 {
		c.timeout.Store(toNanos(timeoutSeconds))
	}
	c.enabled.Store(enabled)
}

func toNanos(seconds float64) int64 {
	ns := seconds * float64(time.Second)
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ns)
}

// Enabled reports whether the clock can expire.
func (c *Clock) Enabled() bool {
	return c.enabled.Load()
}

// Timeout returns the configured budget.
func (c *Clock) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

// Reset restarts the stopwatch.
func (c *Clock) Reset() {
	c.started.Store(c.now().UnixNano())
}

// Elapsed returns the time since the last Reset, or zero before the first.
func (c *Clock) Elapsed() time.Duration {
	start := c.started.Load()
	if start == 0 {
		return 0
	}
	return time.Duration(c.now().UnixNano() - start)
}

// Expired reports whether the clock is enabled and the elapsed time since
// the last Reset exceeds the budget.
func (c *Clock) Expired() bool {
	if !c.enabled.Load() {
		return false
	}
	return c.Elapsed() > c.Timeout()
}
