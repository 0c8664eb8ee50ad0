package vfs

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"cart:/main.lua", "main.lua", nil},
		{"cart:/", "", nil},
		{"cart://lib//./util.lua", "lib/util.lua", nil},
		{"cart:/lib/../main.lua", "", ErrPathTraversal},
		{"save:/slot1", "", ErrNamespace},
		{"main.lua", "", ErrInvalidPath},
		{"", "", ErrInvalidPath},
		{`cart:/lib\util.lua`, "", ErrInvalidPath},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		base, rel string
		want      string
		wantErr   bool
	}{
		{"cart:/", "main.lua", "cart:/main.lua", false},
		{"cart:/lib", "util.lua", "cart:/lib/util.lua", false},
		{"cart:/lib", "../main.lua", "cart:/main.lua", false},
		{"cart:/lib", "./sub/x.lua", "cart:/lib/sub/x.lua", false},
		{"cart:/lib", "cart:/abs.lua", "cart:/abs.lua", false},
		{"cart:/lib", "../../escape.lua", "", true},
		{"cart:/", "../x.lua", "", true},
	}

	for _, tt := range tests {
		got, err := Join(tt.base, tt.rel)
		if tt.wantErr {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("Join(%q, %q) error = %v, want traversal", tt.base, tt.rel, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Join(%q, %q) unexpected error: %v", tt.base, tt.rel, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Join(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}

func TestDirBase(t *testing.T) {
	tests := []struct {
		in, dir, base string
	}{
		{"cart:/main.lua", "cart:/", "main.lua"},
		{"cart:/lib/util.lua", "cart:/lib", "util.lua"},
		{"cart:/a/b/c.lua", "cart:/a/b", "c.lua"},
		{"cart:/", "cart:/", ""},
	}
	for _, tt := range tests {
		if got := Dir(tt.in); got != tt.dir {
			t.Errorf("Dir(%q) = %q, want %q", tt.in, got, tt.dir)
		}
		if got := Base(tt.in); got != tt.base {
			t.Errorf("Base(%q) = %q, want %q", tt.in, got, tt.base)
		}
	}
}

func TestClean(t *testing.T) {
	got, err := Clean("cart:/lib/./a.lua")
	if err != nil || got != "cart:/lib/a.lua" {
		t.Errorf("Clean = %q, %v", got, err)
	}
	if !IsAbs("cart:/x") || IsAbs("x/y") {
		t.Error("IsAbs mismatch")
	}
}
