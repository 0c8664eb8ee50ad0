package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// OSFS implements FS over a directory on disk. The directory is the root
// of the cart:/ namespace.
type OSFS struct {
	root string
}

// NewOSFS creates an OSFS rooted at dir.
func NewOSFS(dir string) (*OSFS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cartridge root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "mount", Path: abs, Err: fmt.Errorf("not a directory")}
	}
	return &OSFS{root: abs}, nil
}

// Ensure OSFS implements FS.
var _ FS = (*OSFS)(nil)

// Root returns the absolute directory backing the namespace.
func (f *OSFS) Root() string {
	return f.root
}

// OSPath maps a virtual path to a host path under Root.
func (f *OSFS) OSPath(p string) (string, error) {
	rel, err := Parse(p)
	if err != nil {
		return "", err
	}
	full := filepath.Join(f.root, filepath.FromSlash(rel))

	// Parse already rejects "..", this guards against odd host separators.
	r, err := filepath.Rel(f.root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", &fs.PathError{Op: "resolve", Path: p, Err: ErrPathTraversal}
	}
	return full, nil
}

// VirtualPath maps a host path under Root back to its virtual path.
func (f *OSFS) VirtualPath(hostPath string) (string, error) {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", err
	}
	r, err := filepath.Rel(f.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", &fs.PathError{Op: "resolve", Path: hostPath, Err: ErrPathTraversal}
	}
	if r == "." {
		return CartPrefix, nil
	}
	return CartPrefix + filepath.ToSlash(r), nil
}

// ReadFile reads the entire file content.
func (f *OSFS) ReadFile(p string) ([]byte, error) {
	full, err := f.OSPath(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Stat returns file information.
func (f *OSFS) Stat(p string) (FileInfo, error) {
	full, err := f.OSPath(p)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, err
	}
	clean, _ := Clean(p)
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	return NewFileInfo(clean, info.Name(), size, info.ModTime(), info.IsDir()), nil
}

// Exists returns true if the path exists.
func (f *OSFS) Exists(p string) bool {
	_, err := f.Stat(p)
	return err == nil
}
