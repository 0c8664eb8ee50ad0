package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFS(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lib", "util.lua"), []byte("return {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewOSFS(dir)
	if err != nil {
		t.Fatalf("NewOSFS failed: %v", err)
	}

	content, err := f.ReadFile("cart:/lib/util.lua")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "return {}" {
		t.Errorf("content = %q", content)
	}

	info, err := f.Stat("cart:/lib")
	if err != nil || !info.IsDir() {
		t.Errorf("Stat(lib) = %+v, %v", info, err)
	}
	if f.Exists("cart:/missing.lua") {
		t.Error("missing file reported as existing")
	}
	if _, err := f.ReadFile("cart:/../secret"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("traversal error = %v", err)
	}
}

func TestOSFS_PathMapping(t *testing.T) {
	dir := t.TempDir()
	f, err := NewOSFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	host, err := f.OSPath("cart:/lib/util.lua")
	if err != nil {
		t.Fatal(err)
	}
	if host != filepath.Join(f.Root(), "lib", "util.lua") {
		t.Errorf("OSPath = %q", host)
	}

	v, err := f.VirtualPath(host)
	if err != nil || v != "cart:/lib/util.lua" {
		t.Errorf("VirtualPath = %q, %v", v, err)
	}
	if _, err := f.VirtualPath(filepath.Dir(f.Root())); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("VirtualPath outside root error = %v", err)
	}
}

func TestNewOSFS_NotDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "main.lua")
	_ = os.WriteFile(file, nil, 0o644)

	if _, err := NewOSFS(file); err == nil {
		t.Error("NewOSFS on a file should fail")
	}
}
