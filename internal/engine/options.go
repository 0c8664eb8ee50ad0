package engine

import (
	"io"

	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/event"
	"github.com/dshills/luahost/internal/logging"
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithLogger sets the engine logger. Scripts' print output is not routed
// here; see WithOutput.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithEventBus publishes script errors, and the debugger's stop and resume
// notifications, on bus.
func WithEventBus(bus event.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

// WithOutput redirects the scripts' print function.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.output = w
	}
}

// WithInstructionLimit caps the instructions a single top-level call may
// execute. Zero means unlimited.
func WithInstructionLimit(limit int64) Option {
	return func(e *Engine) {
		if limit >= 0 {
			e.instructionLimit = limit
		}
	}
}

// WithGlobals exposes values to scripts as the read-only global table cart.
func WithGlobals(globals map[string]any) Option {
	return func(e *Engine) {
		e.globals = globals
	}
}

// WithDebugOptions passes options to the engine's debugger.
func WithDebugOptions(opts ...debug.Option) Option {
	return func(e *Engine) {
		e.debugOpts = append(e.debugOpts, opts...)
	}
}
