package debug

import (
	lua "github.com/yuin/gopher-lua"
)

// hookCoroutines wraps coroutine.create and coroutine.wrap in vm so each new
// thread is passed to attach before it first runs. A gopher-lua thread only
// inherits a cancel context derived from its creator, which never reaches
// the hook.
func hookCoroutines(vm *lua.LState, attach func(co *lua.LState)) {
	lib, ok := vm.GetGlobal(lua.CoroutineLibName).(*lua.LTable)
	if !ok {
		return
	}

	if create, ok := goFunction(lib, "create"); ok {
		lib.RawSetString("create", vm.NewFunction(func(L *lua.LState) int {
			n := create(L)
			if co, ok := L.Get(-1).(*lua.LState); ok {
				attach(co)
			}
			return n
		}))
	}

	if wrap, ok := goFunction(lib, "wrap"); ok {
		lib.RawSetString("wrap", vm.NewFunction(func(L *lua.LState) int {
			n := wrap(L)
			// The wrapper closure keeps its thread as the first upvalue.
			if fn, ok := L.Get(-1).(*lua.LFunction); ok && len(fn.Upvalues) > 0 {
				if co, ok := fn.Upvalues[0].Value().(*lua.LState); ok {
					attach(co)
				}
			}
			return n
		}))
	}
}

func goFunction(t *lua.LTable, name string) (lua.LGFunction, bool) {
	fn, ok := t.RawGetString(name).(*lua.LFunction)
	if !ok || !fn.IsG {
		return nil, false
	}
	return fn.GFunction, true
}
