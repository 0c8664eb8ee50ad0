package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/luahost/internal/debug"
)

type cmdfunc func(c *Console, args []string) error

type command struct {
	aliases []string
	usage   string
	helpMsg string
	fn      cmdfunc
}

type commands struct {
	cmds []command
}

func debugCommands() *commands {
	c := &commands{}
	c.cmds = []command{
		{aliases: []string{"help", "h"}, helpMsg: "Prints the help message.", fn: c.help},
		{aliases: []string{"break", "b"}, usage: "[file:]line", helpMsg: "Set a breakpoint.", fn: setBreakpoint},
		{aliases: []string{"delete", "d"}, usage: "[file:]line", helpMsg: "Delete a breakpoint.", fn: deleteBreakpoint},
		{aliases: []string{"clear"}, helpMsg: "Delete all breakpoints.", fn: clearBreakpoints},
		{aliases: []string{"breakpoints", "bl"}, helpMsg: "List breakpoints.", fn: listBreakpoints},
		{aliases: []string{"continue", "c"}, helpMsg: "Run until the next breakpoint.", fn: action(debug.ActionContinue)},
		{aliases: []string{"step", "s"}, helpMsg: "Step to the next line, entering calls.", fn: action(debug.ActionStepIn)},
		{aliases: []string{"next", "n"}, helpMsg: "Step to the next line in this function.", fn: action(debug.ActionStepOver)},
		{aliases: []string{"stepout", "o"}, helpMsg: "Run until the current function returns.", fn: action(debug.ActionStepOut)},
		{aliases: []string{"pause", "p"}, helpMsg: "Halt at the next line.", fn: action(debug.ActionPause)},
		{aliases: []string{"stack", "bt"}, helpMsg: "Print the call stack.", fn: stack},
		{aliases: []string{"locals", "l"}, usage: "[frame]", helpMsg: "Print the locals of a frame.", fn: locals},
		{aliases: []string{"watchdog", "wd"}, usage: "on [seconds] | off", helpMsg: "Configure the per-call time budget.", fn: watchdog},
		{aliases: []string{"debug"}, usage: "on | off", helpMsg: "Turn breakpoints and stepping on or off.", fn: enable},
		{aliases: []string{"status", "st"}, helpMsg: "Print cartridge and debugger state.", fn: status},
		{aliases: []string{"reload", "r"}, helpMsg: "Reload the cartridge.", fn: reload},
		{aliases: []string{"kill", "k"}, helpMsg: "Terminate the script.", fn: kill},
		{aliases: []string{"exit", "quit", "q"}, helpMsg: "Leave the console.", fn: quit},
	}
	return c
}

func (c *commands) find(name string) (command, bool) {
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return command{}, false
}

// names returns every alias, for completion.
func (c *commands) names() []string {
	var out []string
	for _, cmd := range c.cmds {
		out = append(out, cmd.aliases...)
	}
	return out
}

func (c *commands) help(con *Console, args []string) error {
	con.printf("The following commands are available:\n")
	for _, cmd := range c.cmds {
		name := strings.Join(cmd.aliases, ", ")
		if cmd.usage != "" {
			name += " " + cmd.usage
		}
		con.printf("    %-32s %s\n", name, cmd.helpMsg)
	}
	return nil
}

// parseLocation accepts "file:line" or a bare line in the file of the
// last stop.
func (c *Console) parseLocation(args []string) (string, int, error) {
	if len(args) != 1 {
		return "", 0, errors.New("expected [file:]line")
	}
	arg := args[0]

	file, lineStr := "", arg
	if i := strings.LastIndex(arg, ":"); i >= 0 {
		file, lineStr = arg[:i], arg[i+1:]
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("invalid line %q", lineStr)
	}

	if file == "" {
		stop := c.lastStop.Load()
		if stop == nil {
			return "", 0, errors.New("no current file; use file:line")
		}
		file = stop.Source
	}
	return file, line, nil
}

func setBreakpoint(c *Console, args []string) error {
	file, line, err := c.parseLocation(args)
	if err != nil {
		return err
	}
	c.dbg.AddBreakpoint(file, line)
	c.printf("Breakpoint set at %s:%d\n", file, line)
	if !c.dbg.IsEnabled() {
		c.printf("Debugging is off; use 'debug on' to stop at breakpoints.\n")
	}
	return nil
}

func deleteBreakpoint(c *Console, args []string) error {
	file, line, err := c.parseLocation(args)
	if err != nil {
		return err
	}
	if !c.dbg.RemoveBreakpoint(file, line) {
		return fmt.Errorf("no breakpoint at %s:%d", file, line)
	}
	c.printf("Breakpoint at %s:%d deleted\n", file, line)
	return nil
}

func clearBreakpoints(c *Console, args []string) error {
	c.dbg.ClearBreakpoints()
	c.printf("All breakpoints deleted\n")
	return nil
}

func listBreakpoints(c *Console, args []string) error {
	bps := c.dbg.Breakpoints().Sorted()
	if len(bps) == 0 {
		c.printf("No breakpoints\n")
		return nil
	}
	for i, bp := range bps {
		suffix := ""
		if !bp.Enabled {
			suffix = " (disabled)"
		}
		c.printf("%3d  %s:%d%s\n", i+1, bp.Path, bp.Line, suffix)
	}
	return nil
}

func action(a debug.Action) cmdfunc {
	return func(c *Console, args []string) error {
		if a != debug.ActionContinue && !c.dbg.IsEnabled() {
			c.dbg.SetEnabled(true)
			c.printf("Debugging enabled\n")
		}
		if a == debug.ActionContinue && !c.dbg.IsPaused() {
			return debug.ErrNotPaused
		}
		c.dbg.SetAction(a)
		return nil
	}
}

func stack(c *Console, args []string) error {
	frames, err := c.dbg.CallStack()
	if err != nil {
		return err
	}
	for _, f := range frames {
		c.printf("#%d %s\n", f.Index, formatFrame(f))
	}
	return nil
}

func locals(c *Console, args []string) error {
	frame := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid frame %q", args[0])
		}
		frame = n
	}
	vars, err := c.dbg.Locals(frame)
	if err != nil {
		return err
	}
	if len(vars) == 0 {
		c.printf("(no locals)\n")
		return nil
	}
	for _, v := range vars {
		c.printf("%s %s = %s\n", v.TypeTag, v.Name, v.DisplayValue)
	}
	return nil
}

func watchdog(c *Console, args []string) error {
	clock := c.dbg.Watchdog()
	if len(args) == 0 {
		state := "off"
		if clock.Enabled() {
			state = "on"
		}
		c.printf("Watchdog %s, timeout %v\n", state, clock.Timeout())
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "on":
		seconds := clock.Timeout().Seconds()
		if len(args) > 1 {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid timeout %q", args[1])
			}
			seconds = v
		}
		c.dbg.SetWatchdog(true, seconds)
		c.printf("Watchdog on, timeout %v\n", clock.Timeout())
	case "off":
		c.dbg.SetWatchdog(false, clock.Timeout().Seconds())
		c.printf("Watchdog off\n")
	default:
		return errors.New("expected on or off")
	}
	return nil
}

func enable(c *Console, args []string) error {
	if len(args) != 1 {
		return errors.New("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		c.dbg.SetEnabled(true)
		c.printf("Debugging enabled\n")
	case "off":
		c.dbg.SetEnabled(false)
		c.printf("Debugging disabled\n")
	default:
		return errors.New("expected on or off")
	}
	return nil
}

func status(c *Console, args []string) error {
	c.printf("Cartridge: %s\n", c.target.State())
	c.printf("Debugger:  %s (pending action %s, %d breakpoints)\n",
		c.dbg.State(), c.dbg.Action(), c.dbg.Breakpoints().Len())
	if stop := c.lastStop.Load(); stop != nil && c.dbg.IsPaused() {
		c.printf("Stopped:   %s:%d (%s)\n", stop.Source, stop.Line, stop.Reason)
	}
	return nil
}

func reload(c *Console, args []string) error {
	if err := c.target.Reload(); err != nil {
		return err
	}
	c.printf("Reload queued\n")
	return nil
}

func kill(c *Console, args []string) error {
	c.target.Terminate()
	c.printf("Termination requested\n")
	return nil
}

func quit(c *Console, args []string) error {
	return errQuit
}

func formatFrame(f debug.StackFrameInfo) string {
	name := f.FunctionName
	if name == "" {
		name = "?"
	}
	if f.Line < 0 {
		return fmt.Sprintf("%s (%s)", name, f.Source)
	}
	return fmt.Sprintf("%s at %s:%d", name, f.Source, f.Line)
}
