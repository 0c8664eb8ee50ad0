// Package main is the entry point for the luahost cartridge runner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dshills/luahost/internal/cartridge"
	"github.com/dshills/luahost/internal/config"
	"github.com/dshills/luahost/internal/console"
	"github.com/dshills/luahost/internal/debug"
	"github.com/dshills/luahost/internal/engine"
	"github.com/dshills/luahost/internal/logging"
	"github.com/dshills/luahost/internal/watcher"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath  string
	LogLevel    string
	Debug       bool
	Console     bool
	StopOnEntry bool
	NoReload    bool
	Watchdog    float64
	Frames      int
	Cartridge   string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		return 1
	}

	level := cfg.Logging().Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)
	log := logging.New(logCfg)
	logging.SetDefault(log)
	for path, err := range cfg.ConfigErrors() {
		log.Warn("config %s: %v", path, err)
	}

	cart, err := cartridge.Open(opts.Cartridge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open cartridge: %v\n", err)
		return 1
	}

	runner, err := newRunner(cfg, opts, cart, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		select {
		case <-signals:
			log.Info("interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Console {
		con := console.NewTerminal(runner, console.WithLogger(log), console.WithHistory(historyPath()))
		go func() {
			if err := con.Run(ctx); err != nil {
				log.Error("console: %v", err)
			}
			// Leaving the console ends the session.
			cancel()
		}()
	}

	if err := runner.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var se *engine.ScriptError
		if errors.As(err, &se) && len(se.Stack) > 0 {
			fmt.Fprintln(os.Stderr, se.Trace())
		}
		return 1
	}
	return 0
}

func newRunner(cfg *config.Config, opts options, cart *cartridge.Cartridge, log *logging.Logger) (*cartridge.Runner, error) {
	dbgCfg := cfg.Debug()
	scriptCfg := cfg.Script()
	rtCfg := cfg.Runtime()
	wdCfg := cfg.Watchdog()

	frames := rtCfg.MaxFrames
	if opts.Frames > 0 {
		frames = opts.Frames
	}
	stopOnEntry := dbgCfg.StopOnEntry || opts.StopOnEntry
	if stopOnEntry && !opts.Console {
		log.Warn("stop on entry without -console: only a signal can end the pause")
	}

	runner, err := cartridge.NewRunner(cart,
		cartridge.WithLogger(log),
		cartridge.WithFrameRate(rtCfg.FrameRate),
		cartridge.WithMaxFrames(frames),
		cartridge.WithStopOnEntry(stopOnEntry),
		cartridge.WithHotReload(scriptCfg.HotReload && !opts.NoReload, watcher.DefaultDebounceDelay),
		cartridge.WithEngineOptions(
			engine.WithOutput(os.Stdout),
			engine.WithInstructionLimit(scriptCfg.InstructionLimit),
			engine.WithDebugOptions(debug.WithPumpInterval(dbgCfg.PumpInterval)),
		),
	)
	if err != nil {
		return nil, err
	}

	dbg := runner.Debugger()
	if opts.Watchdog > 0 {
		dbg.SetWatchdog(true, opts.Watchdog)
	} else {
		dbg.SetWatchdog(wdCfg.Enabled, wdCfg.Timeout)
	}
	if dbgCfg.Enabled || opts.Debug {
		dbg.SetEnabled(true)
	}
	return runner, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".luahost_history")
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
	flag.BoolVar(&opts.Debug, "debug", false, "Enable breakpoints and stepping")
	flag.BoolVar(&opts.Debug, "d", false, "Enable breakpoints and stepping (shorthand)")
	flag.BoolVar(&opts.Console, "console", false, "Start the interactive debugger console")
	flag.BoolVar(&opts.StopOnEntry, "stop-on-entry", false, "Halt at the first line of the entry script")
	flag.BoolVar(&opts.NoReload, "no-reload", false, "Disable hot reload")
	flag.Float64Var(&opts.Watchdog, "watchdog", 0, "Per-call time budget in seconds (enables the watchdog)")
	flag.IntVar(&opts.Frames, "frames", 0, "Stop after this many frames")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "luahost - Lua cartridge runner with a cooperative debugger\n\n")
		fmt.Fprintf(os.Stderr, "Usage: luahost [options] [cartridge]\n\n")
		fmt.Fprintf(os.Stderr, "The cartridge is a directory (with an optional cartridge.toml) or a single .lua file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  luahost ./game                   Run a cartridge directory\n")
		fmt.Fprintf(os.Stderr, "  luahost -console -d game.lua     Debug a single script\n")
		fmt.Fprintf(os.Stderr, "  luahost -watchdog 0.1 ./game     Abort calls running over 100ms\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("luahost %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	// Validate log level
	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected one cartridge, got %d\n", flag.NArg())
		os.Exit(1)
	}
	opts.Cartridge = "."
	if flag.NArg() == 1 {
		opts.Cartridge = flag.Arg(0)
	}
	return opts
}
