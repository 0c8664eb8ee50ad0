// Package console is a line-oriented debugger front end for a running
// cartridge.
//
// The console runs on its own goroutine and drives the debugger through its
// control API, so commands typed while the script is halted take effect
// immediately. Stop notifications arrive on the executing goroutine through
// the debugger's stop callback and are printed as they happen.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/dshills/luahost/internal/cartridge"
	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/logging"
)

// DefaultPrompt is printed before each command.
const DefaultPrompt = "(luahost) "

// errQuit ends Run without an error.
var errQuit = errors.New("quit")

// Target is the cartridge the console controls. *cartridge.Runner
// implements it.
type Target interface {
	Debugger() *debug.Debugger
	State() cartridge.State
	Terminate()
	Reload() error
}

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Console) {
		c.log = l
	}
}

// WithPrompt replaces DefaultPrompt.
func WithPrompt(p string) Option {
	return func(c *Console) {
		c.prompt = p
	}
}

// WithHistory keeps line-editor history in path. It only applies to
// interactive terminals.
func WithHistory(path string) Option {
	return func(c *Console) {
		c.historyPath = path
	}
}

// Console reads commands and applies them to a Target.
type Console struct {
	target Target
	dbg    *debug.Debugger
	input  lineReader
	out    *syncWriter
	log    *logging.Logger
	cmds   *commands

	prompt      string
	historyPath string

	// lastStop is where the script last halted; "break 12" uses its source.
	lastStop atomic.Pointer[debug.StopInfo]
}

// New creates a console reading commands from in and writing to out. The
// console installs itself as the debugger's stop callback.
func New(target Target, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := newConsole(target, out, opts...)
	c.input = newScanReader(in, c.out)
	return c
}

// NewTerminal creates a console on stdin and stdout. A real terminal gets
// line editing and history; anything else is read line by line.
func NewTerminal(target Target, opts ...Option) *Console {
	c := newConsole(target, os.Stdout, opts...)
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		c.input = newLinerReader(c.historyPath, c.cmds.names())
	} else {
		c.input = newScanReader(os.Stdin, c.out)
	}
	return c
}

func newConsole(target Target, out io.Writer, opts ...Option) *Console {
	c := &Console{
		target: target,
		dbg:    target.Debugger(),
		out:    &syncWriter{w: out},
		prompt: DefaultPrompt,
		cmds:   debugCommands(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrDefault(c.log).WithComponent("console")
	c.dbg.SetStopCallback(c.stopped)
	return c
}

// Run reads and executes commands until quit, end of input, or ctx ends.
// Command failures are printed and do not end Run.
func (c *Console) Run(ctx context.Context) error {
	defer func() {
		if err := c.input.Close(); err != nil {
			c.log.Warn("close input: %v", err)
		}
	}()

	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			line, err := c.input.Prompt(c.prompt)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-stop:
				return
			}
		}
	}()

	c.printf("Type 'help' for list of commands.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) || errors.Is(err, errAborted) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		case line := <-lines:
			if err := c.Exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("Command failed: %v\n", err)
			}
		}
	}
}

// Exec runs one command line. Blank lines are ignored.
func (c *Console) Exec(line string) error {
	name, args := parseCommand(line)
	if name == "" {
		return nil
	}
	cmd, ok := c.cmds.find(name)
	if !ok {
		return fmt.Errorf("unknown command %q; type 'help'", name)
	}
	c.log.Debug("command %s %v", name, args)
	return cmd.fn(c, args)
}

// stopped runs on the executing goroutine each time the script halts.
func (c *Console) stopped(line int, source, reason string) {
	info := &debug.StopInfo{Source: source, Line: line, Reason: reason}
	c.lastStop.Store(info)

	where := fmt.Sprintf("%s:%d", source, line)
	if frames, err := c.dbg.CallStack(); err == nil && len(frames) > 0 {
		where = formatFrame(frames[0])
	}
	c.printf("\nStopped (%s) %s\n%s", reason, where, c.prompt)
}

func (c *Console) printf(format string, args ...any) {
	c.out.printf(format, args...)
}

func parseCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// syncWriter serializes output from the console and executing goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}
