// Package cartridge loads and runs a Lua cartridge.
//
// A cartridge is a directory mounted as the cart:/ namespace. It holds an
// optional cartridge.toml manifest and the entry script it names (main.lua
// by default). A single .lua file can also be run; its directory is
// mounted and the file becomes the entry script.
//
// Runner drives the cartridge: it loads the entry script, calls init, then
// calls update at a fixed rate and draw once per frame. All script work
// happens on one executing goroutine owned by a lua.Executor; other
// goroutines (a console, the hot-reload watcher) interact through the
// Debugger control API or by queueing work.
//
// # State machine
//
//	Unloaded -> Loading -> Initialized -> Running <-> Paused
//	                 \            \          \
//	                  +-> Faulted  +-> Stopped +-> Loading (reload)
//
// Paused mirrors the debugger: the runner enters it on debug.stopped and
// leaves it on debug.resumed. Every transition is published on the event
// bus as TopicStateChanged.
package cartridge
