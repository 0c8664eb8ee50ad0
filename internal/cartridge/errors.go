package cartridge

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryNotFound is returned when the entry script does not exist.
	ErrEntryNotFound = errors.New("entry script not found")

	// ErrNotCartridge is returned for a path that is neither a directory
	// nor a .lua file.
	ErrNotCartridge = errors.New("not a cartridge directory or .lua file")

	// ErrInvalidTransition is returned for a state change the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid cartridge state transition")

	// ErrRunning is returned by Run when the runner is already running.
	ErrRunning = errors.New("runner already started")
)

// ManifestError describes an invalid cartridge.toml.
type ManifestError struct {
	// Line is the line number (0 if unknown).
	Line    int
	Message string
	Err     error
}

func (e *ManifestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", ManifestFile, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", ManifestFile, e.Message)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}
