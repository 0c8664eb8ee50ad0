package lua

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts between Go and Lua values for host-provided APIs.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a Bridge for L.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value. Tables become []any when
// their keys are exactly 1..n and map[string]any otherwise; functions and
// cyclic references become nil.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	count, maxN := 0, 0
	sequence := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		kn, ok := k.(lua.LNumber)
		if !ok || float64(kn) != float64(int(kn)) || int(kn) < 1 {
			sequence = false
			return
		}
		if int(kn) > maxN {
			maxN = int(kn)
		}
	})

	if sequence && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprintf("%v", float64(kv))
		default:
			key = k.String()
		}
		m[key] = b.toGo(v, visited)
	})
	return m
}

// ToLuaValue converts a Go value to a Lua value. Unsupported types become
// their fmt.Sprint string.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case []any:
		t := b.L.CreateTable(len(val), 0)
		for i, e := range val {
			t.RawSetInt(i+1, b.ToLuaValue(e))
		}
		return t
	case map[string]any:
		return b.mapToTable(val)
	case map[string]string:
		t := b.L.CreateTable(0, len(val))
		for k, s := range val {
			t.RawSetString(k, lua.LString(s))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

// mapToTable inserts keys in sorted order so table iteration is stable
// across runs.
func (b *Bridge) mapToTable(m map[string]any) *lua.LTable {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := b.L.CreateTable(0, len(m))
	for _, k := range keys {
		t.RawSetString(k, b.ToLuaValue(m[k]))
	}
	return t
}

// ReadOnly wraps t in a proxy whose writes raise an error.
func (b *Bridge) ReadOnly(t *lua.LTable) *lua.LTable {
	proxy := b.L.NewTable()
	mt := b.L.NewTable()
	mt.RawSetString("__index", t)
	mt.RawSetString("__newindex", b.L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("attempt to modify read-only table")
		return 0
	}))
	mt.RawSetString("__metatable", lua.LFalse)
	b.L.SetMetatable(proxy, mt)
	return proxy
}
