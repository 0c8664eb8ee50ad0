package cartridge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/luahost/internal/vfs"
)

// Cartridge is a mounted cartridge and its manifest.
type Cartridge struct {
	Manifest *Manifest
	FS       vfs.FS

	// Root is the host directory behind FS, or "" when FS is not on disk.
	Root string
}

// Open mounts the cartridge at path. path is either a directory (with an
// optional cartridge.toml) or a single .lua file.
func Open(path string) (*Cartridge, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	dir, entry := path, ""
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".lua") {
			return nil, fmt.Errorf("%w: %s", ErrNotCartridge, path)
		}
		dir, entry = filepath.Dir(path), filepath.Base(path)
	}

	osfs, err := vfs.NewOSFS(dir)
	if err != nil {
		return nil, err
	}

	var c *Cartridge
	if entry != "" {
		c = &Cartridge{Manifest: defaultManifestFor(entry, entry), FS: osfs, Root: osfs.Root()}
		if err := c.checkEntry(); err != nil {
			return nil, err
		}
		return c, nil
	}

	c, err = FromFS(osfs, filepath.Base(osfs.Root()))
	if err != nil {
		return nil, err
	}
	c.Root = osfs.Root()
	return c, nil
}

// FromFS creates a cartridge over fsys. name identifies the cartridge when
// there is no manifest.
func FromFS(fsys vfs.FS, name string) (*Cartridge, error) {
	m, err := LoadManifest(fsys)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		m = defaultManifestFor(name, DefaultEntry)
	default:
		return nil, err
	}

	c := &Cartridge{Manifest: m, FS: fsys}
	if err := c.checkEntry(); err != nil {
		return nil, err
	}
	return c, nil
}

// EntryPath returns the entry script's virtual path.
func (c *Cartridge) EntryPath() string {
	p, _ := c.Manifest.EntryPath()
	return p
}

// DisplayPath maps a virtual path to a host path when the cartridge is on
// disk, for messages.
func (c *Cartridge) DisplayPath(p string) string {
	if osfs, ok := c.FS.(*vfs.OSFS); ok {
		if host, err := osfs.OSPath(p); err == nil {
			return host
		}
	}
	return p
}

func (c *Cartridge) checkEntry() error {
	entry, err := c.Manifest.EntryPath()
	if err != nil {
		return err
	}
	if !c.FS.Exists(entry) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entry)
	}
	return nil
}

// defaultManifestFor describes a cartridge that has no cartridge.toml.
func defaultManifestFor(name, entry string) *Manifest {
	m := DefaultManifest()
	m.ID = strings.TrimSuffix(name, filepath.Ext(name))
	m.Title = m.ID
	m.Version = "0.0.0"
	m.APIVersion = APIVersion
	m.Entry = entry
	return m
}
