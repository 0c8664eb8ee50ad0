// Package debug implements cooperative execution control for the embedded
// Lua VM: line breakpoints, stepping, pausing, a per-call watchdog and
// external termination.
//
// # Architecture
//
// Nothing in this package preempts the VM. Instead the Debugger installs a
// hook on the executing LState that runs before every instruction and feeds
// an ExecutionEvent through a Dispatcher of small strategies:
//
//	┌───────────────┐   per instruction   ┌────────────────────────────────┐
//	│  gopher-lua   │ ──────────────────▶ │ Dispatcher                     │
//	│  main loop    │ ◀── abort error ─── │  1. TerminationStrategy        │
//	└───────────────┘                     │  2. WatchdogStrategy           │
//	                                      │  3. extra (instruction budget) │
//	                                      │  4. StateMachine (line events) │
//	                                      └────────────────────────────────┘
//	                                                     │ halt
//	                                                     ▼
//	                                      ┌────────────────────────────────┐
//	                                      │ pause loop (executing thread)  │
//	                                      │  pump UI, poll exit/terminate, │
//	                                      │  wait on wake channel or tick  │
//	                                      └────────────────────────────────┘
//
// A strategy that returns an error aborts the running script. The error is
// latched until the next top-level call (BeginCall), so a script-level pcall
// cannot swallow a watchdog timeout or a termination request.
//
// # Threads
//
// Exactly one goroutine executes script code. Any other goroutine may add or
// remove breakpoints, change the action, resume, configure the watchdog or
// request termination. While the executing goroutine is halted it publishes
// an immutable Snapshot of the call stack and locals; CallStack and Locals
// read that snapshot from any goroutine.
//
// # Stepping
//
// A line event fires when execution reaches a new line in a Lua function or
// jumps back within the current line, as a loop written on one line does,
// but not when control returns to a caller that is still in the middle of a
// line. Step depth is the number of frames on the call stack, measured the
// same way when a step begins and when it is evaluated. Inside a coroutine
// the frames of the threads that resumed it are counted too:
//
//   - StepIn halts at the next line event.
//   - StepOver halts at the next line event whose depth is not deeper than
//     where the step began.
//   - StepOut halts at the next line event in a caller.
//   - Pause halts at the next line event.
//
// # Coroutines
//
// Each coroutine runs on its own LState. Attach wraps coroutine.create and
// coroutine.wrap so every new thread gets a hook sharing the VM's dispatcher,
// state machine and abort latch. Breakpoints, steps, the watchdog and
// termination all apply inside coroutine bodies, and an abort raised there
// also stops the resuming thread at its next instruction.
package debug
