// Package vfs provides the virtual file system scripts are loaded from.
//
// Script-visible paths carry a namespace prefix, as in "cart:/lib/util.lua".
// The FS interface lets the engine run against an in-memory tree in tests
// and a cartridge directory on disk in the host.
package vfs

import (
	"errors"
	"io/fs"
	"path"
	"strings"
	"time"
)

// CartPrefix is the namespace prefix of the read-only cartridge tree.
const CartPrefix = "cart:/"

// Path errors.
var (
	ErrInvalidPath   = errors.New("invalid vfs path")
	ErrNamespace     = errors.New("unknown vfs namespace")
	ErrPathTraversal = errors.New("path traversal not allowed")
)

// FS is a read-only view of the cartridge namespace.
type FS interface {
	// ReadFile reads the entire file content.
	ReadFile(path string) ([]byte, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// Exists returns true if the path exists.
	Exists(path string) bool
}

// FileInfo describes a file or directory.
type FileInfo struct {
	path    string
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

// NewFileInfo creates a FileInfo from the given parameters.
func NewFileInfo(path, name string, size int64, modTime time.Time, isDir bool) FileInfo {
	return FileInfo{
		path:    path,
		name:    name,
		size:    size,
		modTime: modTime,
		isDir:   isDir,
	}
}

// Path returns the full virtual path.
func (fi FileInfo) Path() string { return fi.path }

// Name returns the base name.
func (fi FileInfo) Name() string { return fi.name }

// Size returns the file size in bytes. Directories report 0.
func (fi FileInfo) Size() int64 { return fi.size }

// ModTime returns the modification time.
func (fi FileInfo) ModTime() time.Time { return fi.modTime }

// IsDir returns true if this is a directory.
func (fi FileInfo) IsDir() bool { return fi.isDir }

// Parse validates a virtual path and returns the slash-separated path
// relative to the namespace root. The root itself parses to "".
//
// Empty segments and "." are dropped; any ".." segment is rejected.
func Parse(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	idx := strings.Index(p, ":/")
	if idx < 0 {
		return "", &fs.PathError{Op: "parse", Path: p, Err: ErrInvalidPath}
	}
	if p[:idx+2] != CartPrefix {
		return "", &fs.PathError{Op: "parse", Path: p, Err: ErrNamespace}
	}

	rest := p[idx+2:]
	if strings.ContainsRune(rest, '\\') {
		return "", &fs.PathError{Op: "parse", Path: p, Err: ErrInvalidPath}
	}

	parts := make([]string, 0, strings.Count(rest, "/")+1)
	for _, seg := range strings.Split(rest, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", &fs.PathError{Op: "parse", Path: p, Err: ErrPathTraversal}
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "/"), nil
}

// Clean returns the canonical form of a virtual path.
func Clean(p string) (string, error) {
	rel, err := Parse(p)
	if err != nil {
		return "", err
	}
	return CartPrefix + rel, nil
}

// IsAbs reports whether p carries a namespace prefix.
func IsAbs(p string) bool {
	return strings.Contains(p, ":/")
}

// Join resolves rel against the directory base. An absolute rel is
// returned cleaned. ".." segments in rel are resolved lexically and may not
// climb above the namespace root.
func Join(base, rel string) (string, error) {
	if IsAbs(rel) {
		return Clean(rel)
	}
	baseRel, err := Parse(base)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(rel, '\\') {
		return "", &fs.PathError{Op: "join", Path: rel, Err: ErrInvalidPath}
	}

	var parts []string
	if baseRel != "" {
		parts = strings.Split(baseRel, "/")
	}
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", &fs.PathError{Op: "join", Path: rel, Err: ErrPathTraversal}
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return CartPrefix + strings.Join(parts, "/"), nil
}

// Dir returns the parent directory of a virtual path. The parent of a
// top-level file is the namespace root.
func Dir(p string) string {
	rel, err := Parse(p)
	if err != nil {
		return CartPrefix
	}
	d := path.Dir("/" + rel)
	return CartPrefix + strings.TrimPrefix(d, "/")
}

// Base returns the last element of a virtual path.
func Base(p string) string {
	rel, err := Parse(p)
	if err != nil || rel == "" {
		return ""
	}
	return path.Base(rel)
}
