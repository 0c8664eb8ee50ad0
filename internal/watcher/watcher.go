// Package watcher reports changes to cartridge files.
//
// FSNotifyWatcher turns fsnotify events into Events, filtered by file
// extension. DebouncedWatcher waits for a burst of changes to settle (editors
// commonly write a file several times per save) and then reports each
// changed path once.
package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	default:
		var parts []string
		for _, o := range []Op{OpCreate, OpWrite, OpRemove, OpRename} {
			if op.Has(o) {
				parts = append(parts, o.String())
			}
		}
		if len(parts) == 0 {
			return "UNKNOWN"
		}
		return strings.Join(parts, "|")
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event represents a file system change event.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is the operation that occurred.
	Op Op

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Watcher monitors file system changes.
type Watcher interface {
	// Watch starts watching a file or directory (non-recursively).
	Watch(path string) error

	// WatchRecursive starts watching a directory and all subdirectories.
	WatchRecursive(path string) error

	// Unwatch stops watching a path.
	Unwatch(path string) error

	// Events returns the channel of file change events. It is closed by Close.
	Events() <-chan Event

	// Errors returns the channel of watcher errors. It is closed by Close.
	Errors() <-chan error

	// Close stops the watcher and releases resources.
	Close() error

	// IsWatching returns true if the path is being watched.
	IsWatching(path string) bool
}

// EventFilter returns true to keep an event.
type EventFilter func(event Event) bool

// Config holds watcher configuration options.
type Config struct {
	// BufferSize is the size of the event and error channels.
	BufferSize int

	// Extensions limits events to files with these extensions (".lua").
	// Empty means all files.
	Extensions []string

	// IgnoreHidden ignores files and directories starting with a dot.
	IgnoreHidden bool

	// EventFilter is an optional filter applied after the others.
	EventFilter EventFilter
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   100,
		IgnoreHidden: true,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithExtensions limits events to the given file extensions.
func WithExtensions(exts ...string) Option {
	return func(c *Config) {
		c.Extensions = append(c.Extensions, exts...)
	}
}

// WithIgnoreHidden enables or disables ignoring hidden files.
func WithIgnoreHidden(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreHidden = ignore
	}
}

// WithEventFilter sets the event filter.
func WithEventFilter(filter EventFilter) Option {
	return func(c *Config) {
		c.EventFilter = filter
	}
}

func (c *Config) hidden(path string) bool {
	if !c.IgnoreHidden {
		return false
	}
	base := filepath.Base(path)
	return len(base) > 1 && base[0] == '.'
}

func (c *Config) matchesExtension(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
