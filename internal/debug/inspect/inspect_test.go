package inspect

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestOf_Scalars(t *testing.T) {
	tests := []struct {
		name    string
		value   lua.LValue
		kind    Kind
		display string
	}{
		{"nil", lua.LNil, KindNil, "null"},
		{"go nil", nil, KindNil, "null"},
		{"integer", lua.LNumber(42), KindInteger, "42"},
		{"negative integer", lua.LNumber(-7), KindInteger, "-7"},
		{"float", lua.LNumber(2.5), KindFloat, "2.500000"},
		{"small float", lua.LNumber(0.1), KindFloat, "0.100000"},
		{"huge float", lua.LNumber(1e300), KindFloat, ""},
		{"true", lua.LTrue, KindBool, "true"},
		{"false", lua.LFalse, KindBool, "false"},
		{"string", lua.LString("hi"), KindString, `"hi"`},
		{"empty string", lua.LString(""), KindString, `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Of(tt.value)
			if v.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.kind)
			}
			if tt.display != "" && v.Display() != tt.display {
				t.Errorf("Display() = %q, want %q", v.Display(), tt.display)
			}
		})
	}
}

func TestOf_Composite(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	err := L.DoString(`
		arr = {10, 20, 30}
		hash = {x = 1}
		mixed = {1, 2, y = 3}
		empty = {}
		obj = setmetatable({}, {})
		fn = function() end
		co = coroutine.create(function() end)
	`)
	if err != nil {
		t.Fatalf("DoString failed: %v", err)
	}

	tests := []struct {
		global  string
		kind    Kind
		display string
	}{
		{"arr", KindArray, "[...]"},
		{"hash", KindTable, "{...}"},
		{"mixed", KindTable, "{...}"},
		{"empty", KindTable, "{...}"},
		{"obj", KindInstance, "<instance>"},
		{"fn", KindFunction, "<function>"},
		{"print", KindNative, "<native>"},
		{"co", KindThread, "<thread>"},
	}

	for _, tt := range tests {
		v := Of(L.GetGlobal(tt.global))
		if v.Kind() != tt.kind {
			t.Errorf("%s: Kind() = %v, want %v", tt.global, v.Kind(), tt.kind)
		}
		if v.Display() != tt.display {
			t.Errorf("%s: Display() = %q, want %q", tt.global, v.Display(), tt.display)
		}
	}

	if a, ok := Of(L.GetGlobal("arr")).(Array); !ok || a.Len != 3 {
		t.Errorf("arr = %#v, want Array{Len: 3}", Of(L.GetGlobal("arr")))
	}

	ud := L.NewUserData()
	if Of(ud).Kind() != KindUserdata || Display(ud) != "<userdata>" {
		t.Errorf("userdata formatted as %v %q", Of(ud).Kind(), Display(ud))
	}
}

func TestOf_DoesNotMutate(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`t = {1, 2, 3}`); err != nil {
		t.Fatal(err)
	}
	tbl := L.GetGlobal("t").(*lua.LTable)
	_ = Of(tbl)
	if tbl.Len() != 3 {
		t.Errorf("table length changed to %d", tbl.Len())
	}
	if tbl.Metatable != lua.LNil {
		t.Error("metatable was set by inspection")
	}
}

func TestKind_String(t *testing.T) {
	if KindArray.String() != "array" || KindUnknown.String() != "unknown" || Kind(99).String() != "unknown" {
		t.Error("unexpected Kind names")
	}
}
