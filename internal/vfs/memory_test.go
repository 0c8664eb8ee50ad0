package vfs

import (
	"errors"
	"io/fs"
	"testing"
)

func TestMemFS_AddFile(t *testing.T) {
	m := NewMemFS()

	if err := m.AddFile("cart:/a/b/file.lua", "return 1"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if !m.Exists("cart:/a/b/file.lua") {
		t.Error("file should exist")
	}

	info, err := m.Stat("cart:/a/b")
	if err != nil {
		t.Fatalf("Stat(dir) failed: %v", err)
	}
	if !info.IsDir() || info.Name() != "b" {
		t.Errorf("dir info = %+v", info)
	}

	info, err = m.Stat("cart:/a/b/file.lua")
	if err != nil {
		t.Fatalf("Stat(file) failed: %v", err)
	}
	if info.IsDir() || info.Size() != 8 || info.Path() != "cart:/a/b/file.lua" {
		t.Errorf("file info = %+v", info)
	}
}

func TestMemFS_ReadFile(t *testing.T) {
	m := NewMemFS()
	_ = m.AddFile("cart:/main.lua", "print('hi')")

	content, err := m.ReadFile("cart://main.lua")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "print('hi')" {
		t.Errorf("content: got %q", content)
	}

	// Callers get a copy
	content[0] = 'X'
	again, _ := m.ReadFile("cart:/main.lua")
	if again[0] != 'p' {
		t.Error("ReadFile returned shared storage")
	}

	if _, err := m.ReadFile("cart:/missing.lua"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v", err)
	}
	if _, err := m.ReadFile("cart:/../etc/passwd"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("ReadFile(traversal) error = %v", err)
	}
}

func TestMemFS_WriteOverDir(t *testing.T) {
	m := NewMemFS()
	_ = m.AddFile("cart:/lib/a.lua", "")

	if err := m.AddFile("cart:/lib", "x"); !errors.Is(err, fs.ErrExist) {
		t.Errorf("write over dir error = %v", err)
	}
	if err := m.AddFile("cart:/", "x"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("write root error = %v", err)
	}
}

func TestMemFS_Remove(t *testing.T) {
	m := NewMemFS()
	_ = m.AddFile("cart:/lib/a.lua", "")

	if err := m.Remove("cart:/lib/a.lua"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if m.Exists("cart:/lib") {
		t.Error("empty directory should disappear")
	}
	if err := m.Remove("cart:/lib/a.lua"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("second Remove error = %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d", m.Len())
	}
}
