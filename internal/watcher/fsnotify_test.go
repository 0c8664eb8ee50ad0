package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpCreate | OpWrite, "CREATE|WRITE"},
		{0, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestConfig_Filters(t *testing.T) {
	c := DefaultConfig()
	c.Extensions = []string{".lua", ".TOML"}

	tests := []struct {
		path   string
		hidden bool
		ext    bool
	}{
		{"/cart/main.lua", false, true},
		{"/cart/cartridge.toml", false, true},
		{"/cart/readme.md", false, false},
		{"/cart/.main.lua.swp", true, false},
		{"/cart/.hidden.lua", true, true},
	}
	for _, tt := range tests {
		if got := c.hidden(tt.path); got != tt.hidden {
			t.Errorf("hidden(%q) = %v", tt.path, got)
		}
		if got := c.matchesExtension(tt.path); got != tt.ext {
			t.Errorf("matchesExtension(%q) = %v", tt.path, got)
		}
	}
}

func TestFSNotifyWatcher_WatchUnwatch(t *testing.T) {
	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher error = %v", err)
	}
	defer w.Close()

	tmpDir := t.TempDir()

	if err := w.Watch(tmpDir); err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	if !w.IsWatching(tmpDir) {
		t.Error("should be watching tmpDir")
	}
	if err := w.Watch(tmpDir); err != ErrAlreadyWatching {
		t.Errorf("Watch again error = %v, want ErrAlreadyWatching", err)
	}
	if err := w.Unwatch(tmpDir); err != nil {
		t.Fatalf("Unwatch error = %v", err)
	}
	if err := w.Unwatch(tmpDir); err != ErrNotWatching {
		t.Errorf("Unwatch again error = %v, want ErrNotWatching", err)
	}
	if err := w.Watch(filepath.Join(tmpDir, "missing")); err != ErrPathNotExist {
		t.Errorf("Watch missing error = %v, want ErrPathNotExist", err)
	}
}

func TestFSNotifyWatcher_WatchRecursive(t *testing.T) {
	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	root := t.TempDir()
	for _, dir := range []string{"lib", "lib/util", ".git"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.WatchRecursive(root); err != nil {
		t.Fatalf("WatchRecursive error = %v", err)
	}
	for _, dir := range []string{"", "lib", "lib/util"} {
		if !w.IsWatching(filepath.Join(root, dir)) {
			t.Errorf("not watching %q", dir)
		}
	}
	if w.IsWatching(filepath.Join(root, ".git")) {
		t.Error("hidden directory should be skipped")
	}
}

func TestFSNotifyWatcher_FileEvents(t *testing.T) {
	w, err := NewFSNotifyWatcher(WithExtensions(".lua"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	dir := t.TempDir()
	if err := w.Watch(dir); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "main.lua")
	if err := os.WriteFile(script, []byte("x = 1"), 0644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if filepath.Ext(ev.Path) != ".lua" {
				t.Fatalf("unfiltered event %+v", ev)
			}
			if ev.Path == script {
				return
			}
		case <-timeout:
			t.Fatal("timeout waiting for main.lua event")
		}
	}
}

func TestFSNotifyWatcher_Close(t *testing.T) {
	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events channel should be closed")
	}
	if err := w.Watch(t.TempDir()); err != ErrWatcherClosed {
		t.Errorf("Watch after Close = %v, want ErrWatcherClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}
