package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/luahost/internal/config/loader"
)

// Config provides unified access to luahost settings.
type Config struct {
	mu sync.RWMutex

	// merged settings: defaults <- file <- environment <- Set
	data map[string]any

	// path of the loaded configuration file, if any
	path string

	// configErrors stores errors encountered during section access.
	configErrors map[string]error
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	fs      loader.FileSystem
	env     *loader.EnvLoader
	skipEnv bool
}

// WithFileSystem reads the configuration file from fsys.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(o *loadOptions) {
		o.fs = fsys
	}
}

// WithEnvLoader replaces the LUAHOST_ environment loader.
func WithEnvLoader(l *loader.EnvLoader) Option {
	return func(o *loadOptions) {
		o.env = l
	}
}

// WithoutEnvironment skips the environment layer.
func WithoutEnvironment() Option {
	return func(o *loadOptions) {
		o.skipEnv = true
	}
}

// New returns a configuration holding only the built-in defaults.
func New() *Config {
	return &Config{data: defaultConfig()}
}

// Load builds a configuration from the defaults, the file at path (TOML or
// YAML by extension; empty or missing means none) and the environment.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{fs: loader.DefaultFS()}
	for _, opt := range opts {
		opt(&o)
	}

	c := New()
	if path != "" {
		fl, err := loader.ForFile(o.fs, path)
		if err != nil {
			return nil, err
		}
		data, err := fl.Load()
		if err != nil {
			return nil, err
		}
		if data != nil {
			c.data = loader.DeepMerge(c.data, data)
			c.path = path
		}
	}

	if !o.skipEnv {
		env := o.env
		if env == nil {
			env = loader.NewEnvLoader(loader.EnvPrefix)
		}
		data, err := env.Load()
		if err != nil {
			return nil, fmt.Errorf("loading environment: %w", err)
		}
		c.data = loader.DeepMerge(c.data, data)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the configuration file that was loaded, or "".
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Validate checks the ranges of numeric settings.
func (c *Config) Validate() error {
	if v, err := c.GetFloat("watchdog.timeout"); err == nil && v <= 0 {
		return fmt.Errorf("watchdog.timeout must be positive: %w", ErrOutOfRange)
	}
	if v, err := c.GetInt("runtime.frameRate"); err == nil && v <= 0 {
		return fmt.Errorf("runtime.frameRate must be positive: %w", ErrOutOfRange)
	}
	if v, err := c.GetInt("script.instructionLimit"); err == nil && v < 0 {
		return fmt.Errorf("script.instructionLimit must not be negative: %w", ErrOutOfRange)
	}
	if v, err := c.GetInt("runtime.maxFrames"); err == nil && v < 0 {
		return fmt.Errorf("runtime.maxFrames must not be negative: %w", ErrOutOfRange)
	}
	return nil
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return getPath(c.data, path)
}

// Set overrides the value at path.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return setPath(c.data, path, value)
}

// Merged returns a copy of the merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loader.Clone(c.data)
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int64, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case uint64:
		return int64(val), nil
	case float64:
		if val != float64(int64(val)) {
			return 0, &TypeError{Path: path, Expected: "int", Actual: "float64"}
		}
		return int64(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetFloat returns a float64 value at the given path.
func (c *Config) GetFloat(path string) (float64, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, &TypeError{Path: path, Expected: "float64", Actual: typeName(v)}
	}
}

// GetDuration returns a duration at the given path. Strings are parsed
// with time.ParseDuration.
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("string %q", val)}
		}
		return d, nil
	default:
		return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
	}
}

// defaultConfig returns the default configuration values.
func defaultConfig() map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level": "info",
		},
		"watchdog": map[string]any{
			"enabled": false,
			"timeout": 0.5,
		},
		"debug": map[string]any{
			"enabled":      false,
			"stopOnEntry":  false,
			"pumpInterval": "10ms",
		},
		"script": map[string]any{
			"instructionLimit": int64(0),
			"hotReload":        true,
		},
		"runtime": map[string]any{
			"frameRate": int64(60),
			"maxFrames": int64(0),
		},
	}
}

// getPath retrieves a value from a nested map using a dot-separated path.
func getPath(m map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}

	current := any(m)
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = cm[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath sets a value in a nested map using a dot-separated path.
func setPath(m map[string]any, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ErrInvalidPath
	}

	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return ErrInvalidPath
		}
		current = nextMap
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// splitPath splits a dot-separated path into parts, dropping empty ones.
func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		if i > start {
			parts = append(parts, path[start:i])
		}
		start = i + 1
	}
	return parts
}

// typeName returns the type name for error messages.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case string:
		return "string"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case time.Duration:
		return "duration"
	case []any:
		return "[]any"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
