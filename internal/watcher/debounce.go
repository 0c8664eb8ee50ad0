package watcher

import (
	"sort"
	"sync"
	"time"
)

// DefaultDebounceDelay is used when NewDebouncedWatcher is given no delay.
const DefaultDebounceDelay = 100 * time.Millisecond

// DebouncedWatcher holds events back until the watched tree has been quiet
// for the delay, then delivers one event per changed path, in path order.
// Saving several files at once therefore arrives as a single burst.
type DebouncedWatcher struct {
	inner Watcher
	delay time.Duration

	mu      sync.Mutex
	pending map[string]Event
	settle  *time.Timer
	closed  bool

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewDebouncedWatcher wraps inner. A non-positive delay means
// DefaultDebounceDelay.
func NewDebouncedWatcher(inner Watcher, delay time.Duration) *DebouncedWatcher {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	dw := &DebouncedWatcher{
		inner:   inner,
		delay:   delay,
		pending: make(map[string]Event),
		events:  make(chan Event, 100),
		errors:  make(chan error, 100),
		done:    make(chan struct{}),
	}
	dw.wg.Add(1)
	go dw.forward()
	return dw
}

// Watch starts watching a path.
func (dw *DebouncedWatcher) Watch(path string) error { return dw.inner.Watch(path) }

// WatchRecursive starts watching a directory tree.
func (dw *DebouncedWatcher) WatchRecursive(path string) error { return dw.inner.WatchRecursive(path) }

// Unwatch stops watching a path.
func (dw *DebouncedWatcher) Unwatch(path string) error { return dw.inner.Unwatch(path) }

// IsWatching reports whether the path is being watched.
func (dw *DebouncedWatcher) IsWatching(path string) bool { return dw.inner.IsWatching(path) }

// Events returns the debounced events.
func (dw *DebouncedWatcher) Events() <-chan Event { return dw.events }

// Errors returns errors from the inner watcher.
func (dw *DebouncedWatcher) Errors() <-chan error { return dw.errors }

// PendingCount returns the number of paths waiting for the tree to settle.
func (dw *DebouncedWatcher) PendingCount() int {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return len(dw.pending)
}

// Flush delivers pending events without waiting.
func (dw *DebouncedWatcher) Flush() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.settle != nil {
		dw.settle.Stop()
	}
	dw.deliverLocked()
}

// Close discards pending events and closes the inner watcher.
func (dw *DebouncedWatcher) Close() error {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return nil
	}
	dw.closed = true
	if dw.settle != nil {
		dw.settle.Stop()
	}
	clear(dw.pending)
	close(dw.done)
	dw.mu.Unlock()

	dw.wg.Wait()

	// Deliveries happen under mu and check closed first.
	dw.mu.Lock()
	close(dw.events)
	close(dw.errors)
	dw.mu.Unlock()

	return dw.inner.Close()
}

func (dw *DebouncedWatcher) forward() {
	defer dw.wg.Done()
	for {
		select {
		case <-dw.done:
			return
		case ev, ok := <-dw.inner.Events():
			if !ok {
				return
			}
			dw.add(ev)
		case err, ok := <-dw.inner.Errors():
			if !ok {
				return
			}
			select {
			case dw.errors <- err:
			default:
			}
		}
	}
}

// add merges ev into the pending set and restarts the settle timer.
func (dw *DebouncedWatcher) add(ev Event) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.closed {
		return
	}

	if prev, ok := dw.pending[ev.Path]; ok {
		ev.Op |= prev.Op
	}
	dw.pending[ev.Path] = ev

	if dw.settle == nil {
		dw.settle = time.AfterFunc(dw.delay, dw.fire)
	} else {
		dw.settle.Reset(dw.delay)
	}
}

func (dw *DebouncedWatcher) fire() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.deliverLocked()
}

func (dw *DebouncedWatcher) deliverLocked() {
	if dw.closed || len(dw.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(dw.pending))
	for p := range dw.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		select {
		case dw.events <- dw.pending[p]:
		default:
			// Channel full, drop event
		}
		delete(dw.pending, p)
	}
}

var _ Watcher = (*DebouncedWatcher)(nil)
