package config

import (
	"errors"
	"fmt"

	"github.com/dshills/luahost/internal/config/loader"
)

// Errors returned by configuration operations.
var (
	// ErrSettingNotFound indicates the setting path doesn't exist.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrTypeMismatch indicates the value type doesn't match the expected type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidPath indicates an invalid setting path format.
	ErrInvalidPath = errors.New("invalid setting path")

	// ErrOutOfRange indicates a numeric setting outside its allowed range.
	ErrOutOfRange = errors.New("value out of range")
)

// ParseError is returned when a configuration file cannot be parsed.
type ParseError = loader.ParseError

// TypeError is returned when a type conversion fails.
type TypeError struct {
	// Path is the setting path.
	Path string
	// Expected is the expected type name.
	Expected string
	// Actual is the actual type name.
	Actual string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}
