package loader

import (
	"testing"
	"time"
)

func getByPath(m map[string]any, path string) (any, bool) {
	var cur any = m
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = cm[path[start:i]]
		if !ok {
			return nil, false
		}
		start = i + 1
	}
	return cur, true
}

func TestEnvLoader_Load(t *testing.T) {
	t.Setenv("LUAHOST_LOG_LEVEL", "debug")
	t.Setenv("LUAHOST_WATCHDOG_TIMEOUT", "0.25")
	t.Setenv("LUAHOST_MAX_FRAMES", "1")
	t.Setenv("LUAHOST_DEBUG", "on")

	config, err := NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"logging.level", "debug"},
		{"watchdog.timeout", 0.25},
		{"runtime.maxFrames", int64(1)},
		{"debug.enabled", true},
	}
	for _, tt := range tests {
		if val, ok := getByPath(config, tt.path); !ok || val != tt.want {
			t.Errorf("%s = %v (%T), want %v", tt.path, val, val, tt.want)
		}
	}
}

func TestEnvLoader_LoadUnmapped(t *testing.T) {
	t.Setenv("LUAHOST_SCRIPT_HOT_RELOAD", "false")

	config, err := NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if val, ok := getByPath(config, "script.hotReload"); !ok || val != false {
		t.Errorf("script.hotReload = %v, want false", val)
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)

	tests := []struct {
		env      string
		expected string
	}{
		{"LUAHOST_DEBUG_STOP_ON_ENTRY", "debug.stopOnEntry"},
		{"LUAHOST_RUNTIME_FRAME_RATE", "runtime.frameRate"},
		{"LUAHOST_SIMPLE", "simple"},
	}

	for _, tt := range tests {
		if got := loader.envToPath(tt.env); got != tt.expected {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.expected)
		}
	}
}

func TestEnvLoader_parseValue(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)

	tests := []struct {
		input    string
		expected any
	}{
		{"true", true},
		{"YES", true},
		{"off", false},
		{"1", int64(1)},
		{"42", int64(42)},
		{"-10", int64(-10)},
		{"3.14", 3.14},
		{"500ms", 500 * time.Millisecond},
		{"hello", "hello"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := loader.parseValue(tt.input); got != tt.expected {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)",
				tt.input, got, got, tt.expected, tt.expected)
		}
	}
}

func TestNewEnvLoaderWithMapping(t *testing.T) {
	t.Setenv("MY_VAR", "test_value")

	loader := NewEnvLoaderWithMapping("MY_", map[string]string{"MY_VAR": "my.setting"})
	config, _ := loader.Load()

	if val, ok := getByPath(config, "my.setting"); !ok || val != "test_value" {
		t.Errorf("my.setting = %v, want 'test_value'", val)
	}
}
