package config

import "time"

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration.

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the logging verbosity level ("debug", "info", "warn", "error").
	Level string
}

// WatchdogConfig holds the per-call time budget.
type WatchdogConfig struct {
	Enabled bool
	// Timeout is the budget in seconds.
	Timeout float64
}

// DebugConfig holds debugger settings.
type DebugConfig struct {
	// Enabled turns breakpoints and stepping on at startup.
	Enabled bool

	// StopOnEntry halts at the first line of the entry script.
	StopOnEntry bool

	// PumpInterval is the maximum wait between UI pumps while halted.
	PumpInterval time.Duration
}

// ScriptConfig holds script engine settings.
type ScriptConfig struct {
	// InstructionLimit caps instructions per call; 0 means unlimited.
	InstructionLimit int64

	// HotReload reloads the cartridge when its files change.
	HotReload bool
}

// RuntimeConfig holds frame loop settings.
type RuntimeConfig struct {
	FrameRate int

	// MaxFrames stops the runner after this many frames; 0 runs until stopped.
	MaxFrames int
}

// Logging returns logging settings.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level: c.getStringOr("logging.level", "info"),
	}
}

// Watchdog returns watchdog settings.
func (c *Config) Watchdog() WatchdogConfig {
	return WatchdogConfig{
		Enabled: c.getBoolOr("watchdog.enabled", false),
		Timeout: c.getFloatOr("watchdog.timeout", 0.5),
	}
}

// Debug returns debugger settings.
func (c *Config) Debug() DebugConfig {
	return DebugConfig{
		Enabled:      c.getBoolOr("debug.enabled", false),
		StopOnEntry:  c.getBoolOr("debug.stopOnEntry", false),
		PumpInterval: c.getDurationOr("debug.pumpInterval", 10*time.Millisecond),
	}
}

// Script returns script engine settings.
func (c *Config) Script() ScriptConfig {
	return ScriptConfig{
		InstructionLimit: c.getIntOr("script.instructionLimit", 0),
		HotReload:        c.getBoolOr("script.hotReload", true),
	}
}

// Runtime returns frame loop settings.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		FrameRate: int(c.getIntOr("runtime.frameRate", 60)),
		MaxFrames: int(c.getIntOr("runtime.maxFrames", 0)),
	}
}

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		if err != ErrSettingNotFound {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getIntOr(path string, defaultValue int64) int64 {
	v, err := c.GetInt(path)
	if err != nil {
		if err != ErrSettingNotFound {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getBoolOr(path string, defaultValue bool) bool {
	v, err := c.GetBool(path)
	if err != nil {
		if err != ErrSettingNotFound {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getFloatOr(path string, defaultValue float64) float64 {
	v, err := c.GetFloat(path)
	if err != nil {
		if err != ErrSettingNotFound {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getDurationOr(path string, defaultValue time.Duration) time.Duration {
	v, err := c.GetDuration(path)
	if err != nil {
		if err != ErrSettingNotFound {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

// recordConfigError stores configuration errors for later retrieval.
// Only the first error for each path is recorded.
func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// ConfigErrors returns any configuration errors encountered during access.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	result := make(map[string]error, len(c.configErrors))
	for k, v := range c.configErrors {
		result[k] = v
	}
	return result
}
