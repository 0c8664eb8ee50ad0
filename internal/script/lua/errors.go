package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrInstructionLimit is raised when a call exceeds its instruction budget.
	ErrInstructionLimit = errors.New("lua instruction limit exceeded")

	// ErrFunctionNotFound is returned when a global function is missing.
	ErrFunctionNotFound = errors.New("lua function not found")

	// ErrExecutorClosed is returned when attempting to use a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrExecutorFull is returned by ExecuteAsync when the queue is full.
	ErrExecutorFull = errors.New("lua executor queue full")
)
