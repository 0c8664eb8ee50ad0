// Package breakpoint holds the set of (source, line) locations at which a
// running script should halt.
//
// Location matching is deliberately loose so that a breakpoint set on
// "player.lua" also fires for chunks the VM reports as "cart:/src/player.lua".
// A reported location matches a registered one, in order, when the paths are
// equal, when either path contains the other, or when their last path
// elements are equal. Lines must always be equal. Two different files sharing
// a basename therefore share breakpoints.
package breakpoint

import (
	"sort"
	"strings"
	"sync"
)

// Breakpoint is a registered halt location.
type Breakpoint struct {
	// Path is the source path as given by the user.
	Path string `json:"path"`

	// Line is the 1-based line number.
	Line int `json:"line"`

	// Enabled breakpoints participate in matching.
	Enabled bool `json:"enabled"`
}

type key struct {
	path string
	line int
}

// Registry is a concurrency-safe breakpoint set. Control threads mutate it
// while the executing thread calls Matches on every line event.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]*Breakpoint
	order   []key
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[key]*Breakpoint),
	}
}

// Add registers an enabled breakpoint. Adding an existing location re-enables
// it instead of creating a duplicate.
func (r *Registry) Add(path string, line int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{path, line}
	if bp, ok := r.entries[k]; ok {
		bp.Enabled = true
		return
	}
	r.entries[k] = &Breakpoint{Path: path, Line: line, Enabled: true}
	r.order = append(r.order, k)
}

// Remove deletes the breakpoint registered at exactly (path, line).
// It reports whether one was removed.
func (r *Registry) Remove(path string, line int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{path, line}
	if _, ok := r.entries[k]; !ok {
		return false
	}
	delete(r.entries, k)
	for i, o := range r.order {
		if o == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every breakpoint.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[key]*Breakpoint)
	r.order = nil
}

// SetEnabled toggles the breakpoint at exactly (path, line) without removing
// it. It reports whether the breakpoint exists.
func (r *Registry) SetEnabled(path string, line int, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.entries[key{path, line}]
	if !ok {
		return false
	}
	bp.Enabled = enabled
	return true
}

// Matches reports whether an enabled breakpoint covers the reported location.
func (r *Registry) Matches(path string, line int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return false
	}
	if bp, ok := r.entries[key{path, line}]; ok && bp.Enabled {
		return true
	}
	for _, bp := range r.entries {
		if bp.Enabled && bp.Line == line && PathsMatch(path, bp.Path) {
			return true
		}
	}
	return false
}

// List returns copies of all breakpoints in insertion order.
func (r *Registry) List() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Breakpoint, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.entries[k])
	}
	return out
}

// Sorted returns copies of all breakpoints ordered by path, then line.
func (r *Registry) Sorted() []Breakpoint {
	out := r.List()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Len returns the number of registered breakpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// PathsMatch applies the exact, containment and basename rules to a pair of
// paths. Empty paths only match each other.
func PathsMatch(reported, registered string) bool {
	if reported == registered {
		return true
	}
	if reported == "" || registered == "" {
		return false
	}
	if strings.Contains(reported, registered) || strings.Contains(registered, reported) {
		return true
	}
	return Base(reported) == Base(registered)
}

// Base returns the last element of a slash or backslash separated path.
func Base(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
