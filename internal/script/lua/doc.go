// Package lua wraps gopher-lua into the sandboxed runtime that cartridge
// scripts run in.
//
// # State
//
// A State owns one LState opened with only the safe standard libraries
// (base, table, string, math, coroutine) and a Sandbox installed:
//
//	state, err := lua.NewState(lua.WithInstructionLimit(5_000_000))
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	fn, err := state.Load(src, "cart:/main.lua")
//	...
//	results, err := state.PCall(fn, nil)
//
// # Sandbox
//
// The Sandbox removes dofile, loadfile, load and loadstring, routes print
// to a configurable writer, counts instructions against a limit, and
// replaces require with a version that serves the safe built-in libraries
// and delegates everything else to a ModuleLoader supplied by the host.
//
// # Executor
//
// LState is not goroutine-safe. The Executor funnels work from any goroutine
// onto the single goroutine that owns the VM.
//
// # Bridge
//
// The Bridge converts between Go values and Lua values for host APIs.
package lua
