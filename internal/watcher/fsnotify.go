package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher implements Watcher on top of fsnotify. fsnotify watches
// directories one level deep; WatchRecursive adds every directory of a tree
// and directories created later are added as they appear.
type FSNotifyWatcher struct {
	fsw    *fsnotify.Watcher
	config Config

	mu      sync.RWMutex
	watched map[string]struct{}
	closed  bool

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFSNotifyWatcher creates a watcher with no paths.
func NewFSNotifyWatcher(opts ...Option) (*FSNotifyWatcher, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FSNotifyWatcher{
		fsw:     fsw,
		config:  cfg,
		watched: make(map[string]struct{}),
		events:  make(chan Event, cfg.BufferSize),
		errors:  make(chan error, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Watch watches a file, or the entries of a directory.
func (w *FSNotifyWatcher) Watch(path string) error {
	abs, _, err := absExisting(path)
	if err != nil {
		return err
	}
	return w.add(abs)
}

// WatchRecursive watches every directory under path, skipping hidden ones
// when IgnoreHidden is set. Directories that cannot be watched are
// reported on Errors.
func (w *FSNotifyWatcher) WatchRecursive(path string) error {
	abs, info, err := absExisting(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.add(abs)
	}

	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != abs && w.config.hidden(p) {
			return filepath.SkipDir
		}
		switch err := w.add(p); {
		case err == nil, errors.Is(err, ErrAlreadyWatching):
		case errors.Is(err, ErrWatcherClosed):
			return err
		default:
			w.report(err)
		}
		return nil
	})
}

// Unwatch stops watching a path added with Watch or WatchRecursive.
func (w *FSNotifyWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.watched[abs]; !ok {
		return ErrNotWatching
	}
	if err := w.fsw.Remove(abs); err != nil {
		return err
	}
	delete(w.watched, abs)
	return nil
}

// IsWatching reports whether path was added.
func (w *FSNotifyWatcher) IsWatching(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.watched[abs]
	return ok
}

// Events returns the filtered change events.
func (w *FSNotifyWatcher) Events() <-chan Event { return w.events }

// Errors returns errors from fsnotify and from adding directories.
func (w *FSNotifyWatcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and closes both channels.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

func (w *FSNotifyWatcher) add(abs string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.watched[abs]; ok {
		return ErrAlreadyWatching
	}
	if err := w.fsw.Add(abs); err != nil {
		return err
	}
	w.watched[abs] = struct{}{}
	return nil
}

func (w *FSNotifyWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case fe, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev, ok := w.accept(fe); ok {
				select {
				case w.events <- ev:
				default:
					// Channel full, drop event
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

// accept converts and filters an fsnotify event. A created directory is
// watched instead of reported.
func (w *FSNotifyWatcher) accept(fe fsnotify.Event) (Event, bool) {
	op := convertOp(fe.Op)
	if op == 0 || w.config.hidden(fe.Name) {
		return Event{}, false
	}
	if op.Has(OpCreate) {
		if info, err := os.Stat(fe.Name); err == nil && info.IsDir() {
			if err := w.add(fe.Name); err != nil && !errors.Is(err, ErrWatcherClosed) {
				w.report(err)
			}
			return Event{}, false
		}
	}
	if !w.config.matchesExtension(fe.Name) {
		return Event{}, false
	}

	ev := Event{Path: fe.Name, Op: op, Timestamp: time.Now()}
	if w.config.EventFilter != nil && !w.config.EventFilter(ev) {
		return Event{}, false
	}
	return ev, true
}

func (w *FSNotifyWatcher) report(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// absExisting resolves path and requires it to exist.
func absExisting(path string) (string, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, ErrPathNotExist
	}
	if err != nil {
		return "", nil, err
	}
	return abs, info, nil
}

// convertOp maps fsnotify operations to Op. Chmod is dropped.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

var _ Watcher = (*FSNotifyWatcher)(nil)
