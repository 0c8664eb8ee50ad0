package debug

import (
	"errors"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luahost/internal/debug/inspect"
)

var generatorScript = script(
	"local gen = coroutine.wrap(function()", // 1
	"  local v = 10",                          // 2
	"  coroutine.yield(v)",                    // 3
	"  return v + 1",                          // 4
	"end)",                                    // 5
	"first = gen()",                           // 6
	"second = gen()",                          // 7
)

func TestDebugger_WatchdogInsideCoroutine(t *testing.T) {
	L, d := newTestDebugger(t)
	d.SetWatchdog(true, 0.05)

	start := time.Now()
	err := runChunk(t, L, d, "co.lua", "coroutine.wrap(function() while true do end end)()")
	if err == nil {
		t.Fatal("loop inside coroutine was not aborted")
	}
	if !errors.Is(d.Abort(), ErrWatchdogTimeout) {
		t.Errorf("Abort() = %v, want ErrWatchdogTimeout", d.Abort())
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("watchdog took %v", time.Since(start))
	}
}

func TestDebugger_TerminationInsideCoroutine(t *testing.T) {
	L, d := newTestDebugger(t)
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.RequestTermination()
	}()

	src := script(
		"local co = coroutine.create(function() while true do end end)",
		"local ok, err = coroutine.resume(co)",
		"resumed = true",
	)
	err := runChunk(t, L, d, "co.lua", src)
	if err == nil {
		t.Fatal("script completed despite termination")
	}
	if !errors.Is(d.Abort(), ErrTerminationRequested) {
		t.Errorf("Abort() = %v, want ErrTerminationRequested", d.Abort())
	}
	// resume reports the error as a value; the resuming thread still stops.
	if L.GetGlobal("resumed") != lua.LNil {
		t.Error("main chunk kept running after the coroutine was terminated")
	}
}

func TestDebugger_BreakpointInsideCoroutine(t *testing.T) {
	L, d := newTestDebugger(t)
	d.SetEnabled(true)
	d.AddBreakpoint("co.lua", 4)

	var (
		stops  []stop
		frames []StackFrameInfo
		locals []LocalVariableInfo
	)
	d.SetStopCallback(func(line int, source, reason string) {
		stops = append(stops, stop{line, source, reason})
		frames, _ = d.CallStack()
		locals, _ = d.Locals(0)
		d.Resume()
	})

	if err := runChunk(t, L, d, "co.lua", generatorScript); err != nil {
		t.Fatalf("script failed: %v", err)
	}

	expectStops(t, stops, stop{4, "co.lua", ReasonBreakpoint})
	if len(frames) < 2 {
		t.Fatalf("frames = %v", frames)
	}
	if frames[0].Line != 4 || frames[0].Source != "co.lua" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	// The resuming main chunk follows the coroutine's frames.
	if last := frames[len(frames)-1]; last.Line != 7 || last.Index != len(frames)-1 {
		t.Errorf("outermost frame = %+v", last)
	}
	assertLocal(t, locals, "v", inspect.KindInteger, "10")

	if L.GetGlobal("first") != lua.LNumber(10) || L.GetGlobal("second") != lua.LNumber(11) {
		t.Errorf("first, second = %v, %v", L.GetGlobal("first"), L.GetGlobal("second"))
	}
}

func TestDebugger_StepOutOfCoroutine(t *testing.T) {
	L, d := newTestDebugger(t)
	d.SetEnabled(true)
	d.AddBreakpoint("co.lua", 2)
	stops := recordStops(d, func(n int) {
		if n == 1 {
			d.SetAction(ActionStepOut)
			return
		}
		d.SetAction(ActionContinue)
	})

	if err := runChunk(t, L, d, "co.lua", generatorScript); err != nil {
		t.Fatalf("script failed: %v", err)
	}
	// Leaving the coroutine body lands on the resumer's next line.
	expectStops(t, *stops,
		stop{2, "co.lua", ReasonBreakpoint},
		stop{7, "co.lua", ReasonStep},
	)
}

func TestDebugger_AttachHooksNewCoroutines(t *testing.T) {
	L, d := newTestDebugger(t)
	// Attaching the same VM again must not wrap the library twice.
	d.Attach(L)

	src := script(
		"created = coroutine.create(function() end)",
		"wrapped = coroutine.wrap(function() end)",
	)
	if err := runChunk(t, L, d, "co.lua", src); err != nil {
		t.Fatalf("script failed: %v", err)
	}

	main := d.hook.Load()
	co, ok := L.GetGlobal("created").(*lua.LState)
	if !ok {
		t.Fatalf("created = %v", L.GetGlobal("created"))
	}
	h, ok := co.Context().(*hookContext)
	if !ok || h.abort != main.abort || h.L != co {
		t.Errorf("coroutine.create context = %#v", co.Context())
	}

	fn, ok := L.GetGlobal("wrapped").(*lua.LFunction)
	if !ok || len(fn.Upvalues) == 0 {
		t.Fatalf("wrapped = %v", L.GetGlobal("wrapped"))
	}
	wco, ok := fn.Upvalues[0].Value().(*lua.LState)
	if !ok {
		t.Fatalf("wrapped upvalue = %v", fn.Upvalues[0].Value())
	}
	if _, ok := wco.Context().(*hookContext); !ok {
		t.Errorf("coroutine.wrap context = %T, want *hookContext", wco.Context())
	}
}
