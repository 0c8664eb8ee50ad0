package cartridge

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/luahost/internal/vfs"
)

// ManifestFile is the manifest's name at the cartridge root.
const ManifestFile = "cartridge.toml"

// APIVersion is the only api_version this host accepts.
const APIVersion = "0.1"

// DefaultEntry is the entry script used when the manifest names none.
const DefaultEntry = "main.lua"

// Manifest describes a cartridge.
type Manifest struct {
	// Required fields
	ID         string `toml:"id"`          // Stable unique ID
	Title      string `toml:"title"`       // User-facing title
	Version    string `toml:"version"`     // Semver recommended
	APIVersion string `toml:"api_version"` // Must be APIVersion
	Entry      string `toml:"entry"`       // Entry script relative to cart:/

	Display     Display     `toml:"display"`
	Permissions Permissions `toml:"permissions"`
	Caps        Caps        `toml:"caps"`
}

// Display holds presentation hints.
type Display struct {
	Aspect            string `toml:"aspect"`  // "16:9", "4:3" or "any"
	Preset            string `toml:"preset"`  // "low", "medium", "high" or "ultra"
	Scaling           string `toml:"scaling"` // "fit", "integer_nearest", "fill" or "stretch"
	AllowUserOverride bool   `toml:"allow_user_override"`
}

// Permissions lists what the cartridge may use.
type Permissions struct {
	SaveStorage bool `toml:"save_storage"`
	Audio       bool `toml:"audio"`
	Net         bool `toml:"net"`
	Native      bool `toml:"native"`
}

// Caps are advisory resource hints; the host is authoritative.
type Caps struct {
	CPUMsPerUpdate  float64 `toml:"cpu_ms_per_update"`
	VMMemoryMB      int     `toml:"vm_memory_mb"`
	MaxDrawCalls    int     `toml:"max_draw_calls"`
	MaxCanvasPixels int     `toml:"max_canvas_pixels"`
	AudioChannels   int     `toml:"audio_channels"`
}

var (
	validAspects  = []string{"16:9", "4:3", "any"}
	validPresets  = []string{"low", "medium", "high", "ultra"}
	validScalings = []string{"fit", "integer_nearest", "fill", "stretch"}
)

// DefaultManifest returns a manifest holding the optional-field defaults.
func DefaultManifest() *Manifest {
	return &Manifest{
		Entry: DefaultEntry,
		Display: Display{
			Aspect:            "16:9",
			Preset:            "medium",
			Scaling:           "fit",
			AllowUserOverride: true,
		},
		Permissions: Permissions{
			SaveStorage: true,
			Audio:       true,
		},
		Caps: Caps{
			CPUMsPerUpdate:  2.0,
			VMMemoryMB:      64,
			MaxDrawCalls:    20000,
			MaxCanvasPixels: 16777216,
			AudioChannels:   32,
		},
	}
}

// ParseManifest decodes and validates cartridge.toml content.
func ParseManifest(data []byte) (*Manifest, error) {
	m := DefaultManifest()
	if err := toml.Unmarshal(data, m); err != nil {
		merr := &ManifestError{Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			merr.Line, _ = derr.Position()
		}
		return nil, merr
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadManifest reads cart:/cartridge.toml from fsys.
func LoadManifest(fsys vfs.FS) (*Manifest, error) {
	data, err := fsys.ReadFile(vfs.CartPrefix + ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Validate checks required fields and enumerated values.
func (m *Manifest) Validate() error {
	required := []struct {
		name, value string
	}{
		{"id", m.ID},
		{"title", m.Title},
		{"version", m.Version},
		{"api_version", m.APIVersion},
		{"entry", m.Entry},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &ManifestError{Message: "Missing required field: " + f.name}
		}
	}

	if m.APIVersion != APIVersion {
		return &ManifestError{Message: fmt.Sprintf("Unsupported api_version: %s (expected %q)", m.APIVersion, APIVersion)}
	}
	if path.Ext(m.Entry) != ".lua" {
		return &ManifestError{Message: "entry must be a .lua file: " + m.Entry}
	}
	if _, err := m.EntryPath(); err != nil {
		return &ManifestError{Message: "invalid entry: " + m.Entry, Err: err}
	}

	enums := []struct {
		name, value string
		allowed     []string
	}{
		{"display.aspect", m.Display.Aspect, validAspects},
		{"display.preset", m.Display.Preset, validPresets},
		{"display.scaling", m.Display.Scaling, validScalings},
	}
	for _, e := range enums {
		if !slices.Contains(e.allowed, e.value) {
			return &ManifestError{Message: fmt.Sprintf("Invalid %s: %s", e.name, e.value)}
		}
	}

	if m.Caps.CPUMsPerUpdate < 0 {
		return &ManifestError{Message: "caps.cpu_ms_per_update must not be negative"}
	}
	return nil
}

// EntryPath returns the entry script's virtual path.
func (m *Manifest) EntryPath() (string, error) {
	return vfs.Join(vfs.CartPrefix, m.Entry)
}

// Globals returns the read-only values exposed to scripts as the cart table.
func (m *Manifest) Globals() map[string]any {
	return map[string]any{
		"id":          m.ID,
		"title":       m.Title,
		"version":     m.Version,
		"api_version": m.APIVersion,
		"entry":       m.Entry,
	}
}

// CanvasSize returns the canvas dimensions for the display preset.
func (d Display) CanvasSize() (width, height int) {
	if d.Aspect == "4:3" {
		switch d.Preset {
		case "low":
			return 400, 300
		case "high":
			return 1600, 1200
		case "ultra":
			return 3200, 2400
		default:
			return 800, 600
		}
	}
	switch d.Preset {
	case "low":
		return 480, 270
	case "high":
		return 1920, 1080
	case "ultra":
		return 3840, 2160
	default:
		return 960, 540
	}
}
