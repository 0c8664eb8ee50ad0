// Package config provides the configuration system for luahost.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← LUAHOST_*, highest priority
//	├─────────────────────────────┤
//	│  2. Configuration File      │  ← luahost.toml / luahost.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Command line flags are applied by the caller with Set after loading.
//
// # Basic Usage
//
//	cfg, err := config.Load("luahost.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wd := cfg.Watchdog()
//	dbg.SetWatchdog(wd.Enabled, wd.Timeout)
//
// # Configuration Files
//
//	[watchdog]
//	enabled = true
//	timeout = 0.5
//
//	[debug]
//	enabled = true
//	stopOnEntry = false
//	pumpInterval = "10ms"
//
//	[script]
//	instructionLimit = 0
//	hotReload = true
//
// # Error Handling
//
// Typed getters return ErrSettingNotFound or a *TypeError (which matches
// ErrTypeMismatch). Section accessors never fail; they fall back to the
// default and record the problem, which ConfigErrors reports.
package config
