// Package engine hosts cartridge scripts on a sandboxed gopher-lua VM.
//
// The Engine loads the entry script from a vfs.FS, resolves require calls
// against the cart:/ namespace, and drives the script's lifecycle functions:
//
//	init()          called once after loading (optional)
//	update(dt)      called every frame with the frame time in seconds
//	draw(alpha)     called every frame with the interpolation factor
//
// Every top-level call runs under the engine's debug.Debugger, which
// enforces the watchdog and termination requests and implements
// breakpoints and stepping. Failures are returned as *ScriptError after
// being logged once with the script stack.
//
// # Threading
//
// An Engine belongs to the goroutine executing its scripts (normally the
// goroutine running a lua.Executor). Terminate and Debugger may be used from
// any goroutine; the Debugger's control API is the cross-goroutine surface.
//
// # Basic Usage
//
//	fsys := vfs.NewMemFS()
//	_ = fsys.AddFile("cart:/main.lua", src)
//
//	e, err := engine.New(fsys, engine.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	if err := e.LoadScript("cart:/main.lua"); err != nil {
//	    return err
//	}
//	_ = e.CallInit()
//	_ = e.CallUpdate(1.0 / 60)
package engine
