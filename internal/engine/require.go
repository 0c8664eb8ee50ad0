package engine

import (
	"bytes"
	"fmt"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/luahost/internal/vfs"
)

// loadModule serves require for cartridge modules. It runs inside the
// sandbox's require on the executing goroutine, so it uses L directly and
// lets script errors propagate to the enclosing top-level call.
func (e *Engine) loadModule(L *glua.LState, name string) (glua.LValue, error) {
	path, err := e.resolveModule(L, name)
	if err != nil {
		return nil, err
	}

	if mod, ok := e.modules[path]; ok {
		return mod, nil
	}
	for _, p := range e.loading {
		if p == path {
			return nil, fmt.Errorf("%w: %s", ErrCircularDependency, path)
		}
	}

	src, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	fn, err := L.Load(bytes.NewReader(src), path)
	if err != nil {
		return nil, fmt.Errorf("module compilation failed: %w", err)
	}

	e.loading = append(e.loading, path)
	defer func() { e.loading = e.loading[:len(e.loading)-1] }()

	L.Push(fn)
	L.Call(0, 1)
	mod := L.Get(-1)
	L.Pop(1)
	if mod == glua.LNil {
		mod = glua.LTrue
	}
	e.modules[path] = mod
	return mod, nil
}

// resolveModule maps a require argument to a virtual path. "a.b" and "a/b"
// name cart:/a/b.lua; relative names resolve against the directory of the
// requiring chunk.
func (e *Engine) resolveModule(L *glua.LState, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty module name", vfs.ErrInvalidPath)
	}
	rel := name
	if !strings.HasSuffix(rel, ".lua") {
		if !strings.Contains(rel, "/") {
			rel = strings.ReplaceAll(rel, ".", "/")
		}
		rel += ".lua"
	}
	return vfs.Join(e.requireBase(L), rel)
}

func (e *Engine) requireBase(L *glua.LState) string {
	// Level 0 is require itself.
	if dbg, ok := L.GetStack(1); ok {
		if _, err := L.GetInfo("S", dbg, glua.LNil); err == nil && vfs.IsAbs(dbg.Source) {
			return vfs.Dir(dbg.Source)
		}
	}
	if n := len(e.loading); n > 0 {
		return vfs.Dir(e.loading[n-1])
	}
	return vfs.CartPrefix
}
