package lua

import (
	"errors"
	"strings"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestSandboxInstall(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	sandbox := NewSandbox(L, 1000000)
	sandbox.Install()

	for _, fn := range []string{"dofile", "loadfile", "load", "loadstring"} {
		if v := L.GetGlobal(fn); v != glua.LNil {
			t.Errorf("%s should be removed, got %T", fn, v)
		}
	}
}

func TestSandboxRequireBuiltin(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	if err := state.DoString(`s = require("string") == string`); err != nil {
		t.Fatal(err)
	}
	if state.GetGlobal("s") != glua.LTrue {
		t.Error("require(string) should return the string library")
	}
}

func TestSandboxRequireWithoutLoader(t *testing.T) {
	state, _ := NewState()
	defer state.Close()

	err := state.DoString(`require("socket")`)
	if err == nil || !strings.Contains(err.Error(), "not available") {
		t.Errorf("require(socket) error = %v", err)
	}
}

func TestSandboxRequireLoader(t *testing.T) {
	var asked []string
	loader := func(L *glua.LState, name string) (glua.LValue, error) {
		asked = append(asked, name)
		if name == "missing" {
			return nil, errors.New("module not found: missing")
		}
		mod := L.NewTable()
		mod.RawSetString("name", glua.LString(name))
		return mod, nil
	}
	state, _ := NewState(WithModuleLoader(loader))
	defer state.Close()

	if err := state.DoString(`n = require("util").name`); err != nil {
		t.Fatal(err)
	}
	if state.GetGlobal("n") != glua.LString("util") {
		t.Errorf("n = %v", state.GetGlobal("n"))
	}

	err := state.DoString(`require("missing")`)
	if err == nil || !strings.Contains(err.Error(), "module not found: missing") {
		t.Errorf("require(missing) error = %v", err)
	}
	if len(asked) != 2 {
		t.Errorf("loader asked for %v", asked)
	}
}

func TestSandboxInstructionCount(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	s := NewSandbox(L, 10)
	if s.IncrementInstructions(5) {
		t.Error("limit reported exceeded at 5/10")
	}
	if !s.IncrementInstructions(6) {
		t.Error("limit not reported exceeded at 11/10")
	}
	if s.InstructionCount() != 11 {
		t.Errorf("InstructionCount() = %d", s.InstructionCount())
	}
	s.ResetInstructionCount()
	if s.InstructionCount() != 0 {
		t.Error("ResetInstructionCount did not reset")
	}

	unlimited := NewSandbox(L, 0)
	if unlimited.IncrementInstructions(1 << 40) {
		t.Error("unlimited sandbox reported a limit")
	}
}
