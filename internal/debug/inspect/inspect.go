// Package inspect turns live Lua values into typed, printable summaries.
//
// Value is a closed set: every Lua value maps to exactly one of the types in
// this package, and callers switch over them (or over Kind) without a
// default fallthrough to raw VM state.
package inspect

import (
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// Kind tags the variant of a formatted value.
type Kind int

const (
	KindUnknown Kind = iota
	KindNil
	KindInteger
	KindFloat
	KindBool
	KindString
	KindTable
	KindArray
	KindFunction
	KindNative
	KindInstance
	KindUserdata
	KindThread
)

// String returns the type tag shown next to locals.
func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindInstance:
		return "instance"
	case KindUserdata:
		return "userdata"
	case KindThread:
		return "thread"
	default:
		return "unknown"
	}
}

// Value is a formatted snapshot of one VM value.
type Value interface {
	Kind() Kind
	Display() string
	sealed()
}

type (
	// Nil is the Lua nil value.
	Nil struct{}
	// Integer is a number with no fractional part.
	Integer struct{ V int64 }
	// Float is a number with a fractional part, or one outside int64 range.
	Float struct{ V float64 }
	// Bool is a Lua boolean.
	Bool struct{ V bool }
	// String is a Lua string.
	String struct{ V string }
	// Table is a table with hash keys.
	Table struct{}
	// Array is a table whose keys are exactly 1..Len.
	Array struct{ Len int }
	// Function is a Lua closure.
	Function struct{}
	// Native is a host (Go) function.
	Native struct{}
	// Instance is a table carrying a metatable.
	Instance struct{}
	// Userdata is host data exposed to scripts.
	Userdata struct{}
	// Thread is a coroutine.
	Thread struct{}
	// Unknown is anything else.
	Unknown struct{}
)

func (Nil) Kind() Kind      { return KindNil }
func (Integer) Kind() Kind  { return KindInteger }
func (Float) Kind() Kind    { return KindFloat }
func (Bool) Kind() Kind     { return KindBool }
func (String) Kind() Kind   { return KindString }
func (Table) Kind() Kind    { return KindTable }
func (Array) Kind() Kind    { return KindArray }
func (Function) Kind() Kind { return KindFunction }
func (Native) Kind() Kind   { return KindNative }
func (Instance) Kind() Kind { return KindInstance }
func (Userdata) Kind() Kind { return KindUserdata }
func (Thread) Kind() Kind   { return KindThread }
func (Unknown) Kind() Kind  { return KindUnknown }

func (Nil) Display() string       { return "null" }
func (v Integer) Display() string { return strconv.FormatInt(v.V, 10) }
func (v Float) Display() string   { return strconv.FormatFloat(v.V, 'f', 6, 64) }
func (v Bool) Display() string    { return strconv.FormatBool(v.V) }
func (v String) Display() string  { return `"` + v.V + `"` }
func (Table) Display() string     { return "{...}" }
func (Array) Display() string     { return "[...]" }
func (Function) Display() string  { return "<function>" }
func (Native) Display() string    { return "<native>" }
func (Instance) Display() string  { return "<instance>" }
func (Userdata) Display() string  { return "<userdata>" }
func (Thread) Display() string    { return "<thread>" }
func (Unknown) Display() string   { return "?" }

func (Nil) sealed()      {}
func (Integer) sealed()  {}
func (Float) sealed()    {}
func (Bool) sealed()     {}
func (String) sealed()   {}
func (Table) sealed()    {}
func (Array) sealed()    {}
func (Function) sealed() {}
func (Native) sealed()   {}
func (Instance) sealed() {}
func (Userdata) sealed() {}
func (Thread) sealed()   {}
func (Unknown) sealed()  {}

// Lua numbers are float64; values in this range with no fraction are shown
// as integers.
const (
	minInt = -(1 << 63)
	maxInt = 1 << 63
)

// Of classifies lv. It never mutates the VM or any value.
func Of(lv lua.LValue) Value {
	switch v := lv.(type) {
	case nil:
		return Nil{}
	case *lua.LNilType:
		return Nil{}
	case lua.LBool:
		return Bool{V: bool(v)}
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= minInt && f < maxInt {
			return Integer{V: int64(f)}
		}
		return Float{V: f}
	case lua.LString:
		return String{V: string(v)}
	case *lua.LTable:
		if v.Metatable != nil && v.Metatable != lua.LNil {
			return Instance{}
		}
		if n, ok := sequenceLen(v); ok {
			return Array{Len: n}
		}
		return Table{}
	case *lua.LFunction:
		if v.IsG {
			return Native{}
		}
		return Function{}
	case *lua.LUserData:
		return Userdata{}
	case *lua.LState:
		return Thread{}
	default:
		return Unknown{}
	}
}

// Display is shorthand for Of(lv).Display().
func Display(lv lua.LValue) string {
	return Of(lv).Display()
}

// sequenceLen reports whether t's keys are exactly 1..n with n > 0.
func sequenceLen(t *lua.LTable) (int, bool) {
	n := t.Len()
	if n == 0 {
		return 0, false
	}
	// Anything after the border means non-sequence keys exist.
	if k, _ := t.Next(lua.LNumber(n)); k != lua.LNil {
		return 0, false
	}
	return n, true
}
