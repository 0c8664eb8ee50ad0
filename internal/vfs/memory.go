package vfs

import (
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"
)

// MemFS implements FS in memory. It backs tests and embedded cartridges.
//
// MemFS is safe for concurrent use.
type MemFS struct {
	mu    sync.RWMutex
	files map[string]*memFile
}

type memFile struct {
	content []byte
	modTime time.Time
}

// NewMemFS creates an empty in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string]*memFile)}
}

// Ensure MemFS implements FS.
var _ FS = (*MemFS)(nil)

// AddFile is a convenience wrapper around WriteFile for string content.
func (m *MemFS) AddFile(p string, content string) error {
	return m.WriteFile(p, []byte(content))
}

// WriteFile stores data at p, replacing any existing file.
func (m *MemFS) WriteFile(p string, data []byte) error {
	rel, err := Parse(p)
	if err != nil {
		return err
	}
	if rel == "" {
		return &fs.PathError{Op: "write", Path: p, Err: ErrInvalidPath}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isDirLocked(rel) {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrExist}
	}
	content := make([]byte, len(data))
	copy(content, data)
	m.files[rel] = &memFile{content: content, modTime: time.Now()}
	return nil
}

// Remove deletes the file at p.
func (m *MemFS) Remove(p string) error {
	rel, err := Parse(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[rel]; !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	delete(m.files, rel)
	return nil
}

// ReadFile reads the entire file content.
func (m *MemFS) ReadFile(p string) ([]byte, error) {
	rel, err := Parse(p)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[rel]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}

	// Return a copy to prevent modification
	content := make([]byte, len(f.content))
	copy(content, f.content)
	return content, nil
}

// Stat returns file information. Directories exist implicitly while they
// contain at least one file.
func (m *MemFS) Stat(p string) (FileInfo, error) {
	rel, err := Parse(p)
	if err != nil {
		return FileInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.files[rel]; ok {
		return NewFileInfo(CartPrefix+rel, path.Base(rel), int64(len(f.content)), f.modTime, false), nil
	}
	if m.isDirLocked(rel) {
		name := path.Base("/" + rel)
		return NewFileInfo(CartPrefix+rel, name, 0, time.Time{}, true), nil
	}
	return FileInfo{}, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

// Exists returns true if the path exists.
func (m *MemFS) Exists(p string) bool {
	_, err := m.Stat(p)
	return err == nil
}

// Len returns the number of files.
func (m *MemFS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

func (m *MemFS) isDirLocked(rel string) bool {
	if rel == "" {
		return true
	}
	prefix := rel + "/"
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
