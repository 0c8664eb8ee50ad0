package cartridge

import (
	"context"

	"github.com/dshills/luahost/internal/watcher"
)

// watch reloads the cartridge when a script under its root changes. The
// returned function stops watching.
func (r *Runner) watch(ctx context.Context) (func(), error) {
	fw, err := watcher.NewFSNotifyWatcher(watcher.WithExtensions(".lua"))
	if err != nil {
		return nil, err
	}
	w := watcher.NewDebouncedWatcher(fw, r.opts.debounce)
	if err := w.WatchRecursive(r.cart.Root); err != nil {
		_ = w.Close()
		return nil, err
	}
	r.log.Debug("watching %s for changes", r.cart.Root)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				r.log.Info("%s changed (%s)", ev.Path, ev.Op)
				if err := r.Reload(); err != nil {
					r.log.Warn("reload: %v", err)
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				r.log.Warn("watcher: %v", err)
			}
		}
	}()

	return func() {
		_ = w.Close()
		<-done
	}, nil
}
