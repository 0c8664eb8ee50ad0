// Package logging provides the leveled, field-aware logger shared by the
// script host, the debugger and the cartridge runner.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity level of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes single-line records of the form
//
//	<timestamp> [LEVEL] prefix: message {key=value, ...}
//
// Derived loggers created with WithField share the parent's output and level.
type Logger struct {
	out      *sink
	prefix   string
	fields   map[string]any
	disabled bool
}

// sink is the state shared between a logger and its derivatives.
type sink struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
	now    func() time.Time
}

// Config configures a logger.
type Config struct {
	// Level is the minimum level written.
	Level Level
	// Output defaults to os.Stderr.
	Output io.Writer
	// Prefix is prepended to every message.
	Prefix string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Prefix: "luahost",
	}
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return &Logger{
		out: &sink{
			level:  cfg.Level,
			output: cfg.Output,
			now:    time.Now,
		},
		prefix: cfg.Prefix,
		fields: make(map[string]any),
	}
}

// WithField returns a logger that adds key=value to every record.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a logger that adds all of fields to every record.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		out:      l.out,
		prefix:   l.prefix,
		fields:   merged,
		disabled: l.disabled,
	}
}

// WithComponent returns a logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// SetLevel sets the minimum level for this logger and all loggers derived
// from the same root.
func (l *Logger) SetLevel(level Level) {
	if l.out == nil {
		return
	}
	l.out.mu.Lock()
	l.out.level = level
	l.out.mu.Unlock()
}

// Level returns the current minimum level.
func (l *Logger) Level() Level {
	if l.out == nil {
		return LevelError + 1
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return !l.disabled && l.out != nil && level >= l.Level()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if l == nil || l.disabled || l.out == nil {
		return
	}
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(s.now().Format("2006-01-02T15:04:05.000"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(": ")
	}
	b.WriteString(msg)

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, l.fields[k])
		}
		b.WriteString("}")
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(s.output, b.String())
}

// Null is a logger that discards everything.
var Null = &Logger{disabled: true}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Default returns the process-wide logger, creating it on first use.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// OrDefault returns l, or the process-wide logger when l is nil.
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return Default()
	}
	return l
}
