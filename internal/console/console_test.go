package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/luahost/internal/cartridge"
	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/logging"
	"github.com/dshills/luahost/internal/vfs"
)

type fakeTarget struct {
	dbg        *debug.Debugger
	terminated atomic.Int32
	reloads    atomic.Int32
	reloadErr  error
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{dbg: debug.New(debug.WithLogger(logging.Null))}
}

func (f *fakeTarget) Debugger() *debug.Debugger { return f.dbg }
func (f *fakeTarget) State() cartridge.State    { return cartridge.StateRunning }
func (f *fakeTarget) Terminate()                { f.terminated.Add(1) }

func (f *fakeTarget) Reload() error {
	f.reloads.Add(1)
	return f.reloadErr
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(t *testing.T, in io.Reader) (*Console, *fakeTarget, *syncBuffer) {
	t.Helper()
	target := newFakeTarget()
	out := &syncBuffer{}
	return New(target, in, out, WithLogger(logging.Null)), target, out
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		name string
		args []string
	}{
		{"", "", nil},
		{"   ", "", nil},
		{"c", "c", []string{}},
		{"  B  main.lua:3 ", "b", []string{"main.lua:3"}},
		{"watchdog on 0.5", "watchdog", []string{"on", "0.5"}},
	}
	for _, tt := range tests {
		name, args := parseCommand(tt.line)
		if name != tt.name || len(args) != len(tt.args) {
			t.Errorf("parseCommand(%q) = %q %v, want %q %v", tt.line, name, args, tt.name, tt.args)
			continue
		}
		for i := range args {
			if args[i] != tt.args[i] {
				t.Errorf("parseCommand(%q) args = %v, want %v", tt.line, args, tt.args)
			}
		}
	}
}

func TestConsole_Breakpoints(t *testing.T) {
	c, target, out := newTestConsole(t, strings.NewReader(""))
	dbg := target.dbg

	if err := c.Exec("b main.lua:3"); err != nil {
		t.Fatalf("break error = %v", err)
	}
	if err := c.Exec("break src/util.lua:10"); err != nil {
		t.Fatalf("break error = %v", err)
	}
	if dbg.Breakpoints().Len() != 2 {
		t.Fatalf("Len() = %d, want 2", dbg.Breakpoints().Len())
	}
	if !strings.Contains(out.String(), "Debugging is off") {
		t.Errorf("missing hint about disabled debugging: %q", out.String())
	}

	if err := c.Exec("bl"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "main.lua:3") || !strings.Contains(out.String(), "src/util.lua:10") {
		t.Errorf("list output = %q", out.String())
	}

	if err := c.Exec("d main.lua:3"); err != nil {
		t.Errorf("delete error = %v", err)
	}
	if err := c.Exec("d main.lua:3"); err == nil {
		t.Error("deleting a missing breakpoint should fail")
	}
	if err := c.Exec("clear"); err != nil {
		t.Fatal(err)
	}
	if dbg.Breakpoints().Len() != 0 {
		t.Errorf("Len() after clear = %d", dbg.Breakpoints().Len())
	}
}

func TestConsole_BreakpointArgs(t *testing.T) {
	c, _, _ := newTestConsole(t, strings.NewReader(""))

	tests := []string{
		"b",
		"b 12",          // no current file before the first stop
		"b main.lua:0",  // lines are 1-based
		"b main.lua:xx", // not a number
		"b a.lua:1 b.lua:2",
	}
	for _, line := range tests {
		if err := c.Exec(line); err == nil {
			t.Errorf("Exec(%q) succeeded", line)
		}
	}

	c.lastStop.Store(&debug.StopInfo{Source: "cart:/main.lua", Line: 4})
	if err := c.Exec("b 12"); err != nil {
		t.Fatalf("Exec(b 12) error = %v", err)
	}
	bps := c.dbg.ListBreakpoints()
	if len(bps) != 1 || bps[0].Path != "cart:/main.lua" || bps[0].Line != 12 {
		t.Errorf("breakpoints = %+v", bps)
	}
}

func TestConsole_Actions(t *testing.T) {
	c, target, out := newTestConsole(t, strings.NewReader(""))
	dbg := target.dbg

	if err := c.Exec("s"); err != nil {
		t.Fatalf("step error = %v", err)
	}
	if !dbg.IsEnabled() || dbg.Action() != debug.ActionStepIn {
		t.Errorf("enabled=%v action=%s", dbg.IsEnabled(), dbg.Action())
	}
	if !strings.Contains(out.String(), "Debugging enabled") {
		t.Errorf("output = %q", out.String())
	}

	tests := map[string]debug.Action{
		"n":       debug.ActionStepOver,
		"stepout": debug.ActionStepOut,
		"p":       debug.ActionPause,
	}
	for line, want := range tests {
		if err := c.Exec(line); err != nil {
			t.Errorf("Exec(%q) error = %v", line, err)
		}
		if dbg.Action() != want {
			t.Errorf("Exec(%q): action = %s, want %s", line, dbg.Action(), want)
		}
	}

	if err := c.Exec("c"); !errors.Is(err, debug.ErrNotPaused) {
		t.Errorf("continue while running = %v, want ErrNotPaused", err)
	}
	if err := c.Exec("bt"); !errors.Is(err, debug.ErrNotPaused) {
		t.Errorf("stack while running = %v, want ErrNotPaused", err)
	}
	if err := c.Exec("locals 0"); !errors.Is(err, debug.ErrNotPaused) {
		t.Errorf("locals while running = %v, want ErrNotPaused", err)
	}
	if err := c.Exec("locals x"); err == nil {
		t.Error("locals with a bad frame should fail")
	}
}

func TestConsole_DebugToggle(t *testing.T) {
	c, target, _ := newTestConsole(t, strings.NewReader(""))

	if err := c.Exec("debug on"); err != nil || !target.dbg.IsEnabled() {
		t.Fatalf("debug on: err=%v enabled=%v", err, target.dbg.IsEnabled())
	}
	if err := c.Exec("debug off"); err != nil || target.dbg.IsEnabled() {
		t.Fatalf("debug off: err=%v enabled=%v", err, target.dbg.IsEnabled())
	}
	for _, line := range []string{"debug", "debug maybe"} {
		if err := c.Exec(line); err == nil {
			t.Errorf("Exec(%q) succeeded", line)
		}
	}
}

func TestConsole_Watchdog(t *testing.T) {
	c, target, out := newTestConsole(t, strings.NewReader(""))
	clock := target.dbg.Watchdog()

	if err := c.Exec("wd on 0.25"); err != nil {
		t.Fatal(err)
	}
	if !clock.Enabled() || clock.Timeout() != 250*time.Millisecond {
		t.Errorf("clock enabled=%v timeout=%v", clock.Enabled(), clock.Timeout())
	}

	if err := c.Exec("watchdog off"); err != nil {
		t.Fatal(err)
	}
	if clock.Enabled() || clock.Timeout() != 250*time.Millisecond {
		t.Errorf("off: enabled=%v timeout=%v", clock.Enabled(), clock.Timeout())
	}

	if err := c.Exec("watchdog on"); err != nil || !clock.Enabled() {
		t.Errorf("on keeps timeout: err=%v enabled=%v", err, clock.Enabled())
	}
	if err := c.Exec("watchdog"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Watchdog on, timeout 250ms") {
		t.Errorf("output = %q", out.String())
	}

	for _, line := range []string{"wd on -1", "wd on abc", "wd sideways"} {
		if err := c.Exec(line); err == nil {
			t.Errorf("Exec(%q) succeeded", line)
		}
	}
}

func TestConsole_TargetCommands(t *testing.T) {
	c, target, out := newTestConsole(t, strings.NewReader(""))

	if err := c.Exec("kill"); err != nil {
		t.Fatal(err)
	}
	if err := c.Exec("reload"); err != nil {
		t.Fatal(err)
	}
	if target.terminated.Load() != 1 || target.reloads.Load() != 1 {
		t.Errorf("terminated=%d reloads=%d", target.terminated.Load(), target.reloads.Load())
	}

	target.reloadErr = errors.New("queue full")
	if err := c.Exec("r"); err == nil {
		t.Error("reload error not returned")
	}

	if err := c.Exec("status"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Cartridge: Running") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_UnknownCommand(t *testing.T) {
	c, _, _ := newTestConsole(t, strings.NewReader(""))
	if err := c.Exec("frobnicate"); err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("Exec() error = %v", err)
	}
	if err := c.Exec("   "); err != nil {
		t.Errorf("blank line error = %v", err)
	}
}

func TestConsole_Help(t *testing.T) {
	c, _, out := newTestConsole(t, strings.NewReader(""))
	if err := c.Exec("help"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"break, b [file:]line", "continue, c", "watchdog, wd on [seconds] | off", "kill, k"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestConsole_RunStopsAtQuit(t *testing.T) {
	c, target, out := newTestConsole(t, strings.NewReader("debug on\nbogus\nquit\nkill\n"))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !target.dbg.IsEnabled() {
		t.Error("debug on not applied")
	}
	if target.terminated.Load() != 0 {
		t.Error("commands after quit were run")
	}
	if !strings.Contains(out.String(), "Command failed: unknown command") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_RunEndsAtEOF(t *testing.T) {
	c, _, out := newTestConsole(t, strings.NewReader("bl\n"))
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "No breakpoints") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsole_RunEndsWithContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c, _, _ := newTestConsole(t, pr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConsole_DebugSession(t *testing.T) {
	fsys := vfs.NewMemFS()
	_ = fsys.AddFile("cart:/main.lua", strings.Join([]string{
		"count = 0",
		"function draw()",
		"  local step = count + 1",
		"  count = step",
		"end",
	}, "\n"))
	cart, err := cartridge.FromFS(fsys, "session")
	if err != nil {
		t.Fatal(err)
	}
	runner, err := cartridge.NewRunner(cart, cartridge.WithLogger(logging.Null), cartridge.WithFrameRate(200))
	if err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &syncBuffer{}
	con := New(runner, pr, out, WithLogger(logging.Null))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runDone := make(chan error, 1)
	conDone := make(chan error, 1)
	go func() { runDone <- runner.Run(ctx) }()
	go func() { conDone <- con.Run(ctx) }()

	send := func(line string) {
		t.Helper()
		if _, err := fmt.Fprintln(pw, line); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	waitFor := func(what string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), what) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %q; output:\n%s", what, out.String())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	send("b main.lua:4")
	send("debug on")
	waitFor("Stopped (breakpoint)")
	if !runner.Debugger().IsPaused() {
		t.Fatal("debugger not paused")
	}

	send("bt")
	waitFor("#0 ")
	waitFor("main.lua:4")

	send("locals")
	waitFor("integer step = ")

	send("status")
	waitFor("Cartridge: Paused")

	send("clear")
	send("c")
	send("kill")
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("runner.Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	send("quit")
	select {
	case err := <-conDone:
		if err != nil {
			t.Errorf("console.Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("console did not return")
	}
}
