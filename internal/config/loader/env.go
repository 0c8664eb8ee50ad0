package loader

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is the prefix of luahost environment variables.
const EnvPrefix = "LUAHOST_"

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "LUAHOST_")
	mapping map[string]string // Env var -> config path
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "LUAHOST_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
		environ: os.Environ,
	}
}

// NewEnvLoaderWithMapping creates a loader with custom environment variable mappings.
func NewEnvLoaderWithMapping(prefix string, mapping map[string]string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: mapping,
		environ: os.Environ,
	}
}

// defaultEnvMapping returns the default environment variable mappings.
func defaultEnvMapping() map[string]string {
	return map[string]string{
		"LUAHOST_LOG_LEVEL":         "logging.level",
		"LUAHOST_WATCHDOG":          "watchdog.enabled",
		"LUAHOST_WATCHDOG_TIMEOUT":  "watchdog.timeout",
		"LUAHOST_DEBUG":             "debug.enabled",
		"LUAHOST_STOP_ON_ENTRY":     "debug.stopOnEntry",
		"LUAHOST_PUMP_INTERVAL":     "debug.pumpInterval",
		"LUAHOST_INSTRUCTION_LIMIT": "script.instructionLimit",
		"LUAHOST_HOT_RELOAD":        "script.hotReload",
		"LUAHOST_FRAME_RATE":        "runtime.frameRate",
		"LUAHOST_MAX_FRAMES":        "runtime.maxFrames",
	}
}

// Load reads environment variables and returns a configuration map.
// Note: Empty string values are treated as valid values, not as unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		if !strings.HasPrefix(env, l.prefix) {
			continue
		}
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}

		path, mapped := l.mapping[name]
		if !mapped {
			// LUAHOST_SCRIPT_HOT_RELOAD -> script.hotReload
			path = l.envToPath(name)
		}
		setByPath(config, path, l.parseValue(value))
	}

	return config, nil
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[envVar] = configPath
}

// envToPath converts LUAHOST_SECTION_SETTING_NAME to section.settingName.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.Split(name, "_")

	section := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return section
	}

	setting := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		if len(part) > 0 {
			setting += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return section + "." + setting
}

// parseValue attempts to parse the string value into an appropriate type.
func (l *EnvLoader) parseValue(s string) any {
	if s == "" {
		return s
	}

	lower := strings.ToLower(s)
	if lower == "true" || lower == "yes" || lower == "on" {
		return true
	}
	if lower == "false" || lower == "no" || lower == "off" {
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	// Only with a decimal point, to avoid misinterpreting ints
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	return s
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
