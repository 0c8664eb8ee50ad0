package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// includeKey names the files a TOML file layers itself over, as a
	// string or an array of strings relative to the including file.
	includeKey = "@include"

	maxIncludeDepth = 8
)

// TOMLLoader loads configuration from TOML files.
type TOMLLoader struct {
	fs   FileSystem
	path string
}

// NewTOMLLoader creates a new TOML loader for the given path.
func NewTOMLLoader(path string) *TOMLLoader {
	return &TOMLLoader{
		fs:   DefaultFS(),
		path: path,
	}
}

// NewTOMLLoaderWithFS creates a TOML loader with a custom file system.
func NewTOMLLoaderWithFS(fs FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{
		fs:   fs,
		path: path,
	}
}

// Load reads configuration from the configured path. Files named by its
// @include key are loaded first and overridden by the including file.
func (l *TOMLLoader) Load() (map[string]any, error) {
	return l.load(l.path, nil)
}

// LoadFrom reads configuration from a specific path.
func (l *TOMLLoader) LoadFrom(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	return l.parse(path, data)
}

// LoadFromReader reads configuration from an io.Reader.
func (l *TOMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return l.parse("<reader>", data)
}

// parse parses TOML data into a map.
func (l *TOMLLoader) parse(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		perr := &ParseError{
			Path:    source,
			Message: err.Error(),
			Err:     err,
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}

	return config, nil
}

// load reads path and merges its includes beneath it. chain holds the
// files that included path.
func (l *TOMLLoader) load(path string, chain []string) (map[string]any, error) {
	if slices.Contains(chain, path) {
		return nil, fmt.Errorf("include cycle: %s -> %s", strings.Join(chain, " -> "), path)
	}
	if len(chain) >= maxIncludeDepth {
		return nil, fmt.Errorf("includes nested deeper than %d at %s", maxIncludeDepth, path)
	}

	// Only the top-level file is optional.
	if len(chain) > 0 {
		if _, err := l.fs.Stat(path); err != nil {
			return nil, fmt.Errorf("include %s: %w", path, err)
		}
	}

	config, err := l.LoadFrom(path)
	if err != nil || config == nil {
		return nil, err
	}

	raw, ok := config[includeKey]
	if !ok {
		return config, nil
	}
	delete(config, includeKey)

	paths, err := includePaths(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}

	chain = append(slices.Clip(chain), path)
	merged := make(map[string]any)
	for _, inc := range paths {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		layer, err := l.load(inc, chain)
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, layer)
	}
	return DeepMerge(merged, config), nil
}

func includePaths(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings, got %T", includeKey, item)
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("%s must be a string or an array of strings, got %T", includeKey, v)
	}
}
