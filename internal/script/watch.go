package script

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"nyql/internal/ctxlog"
)

// watch registers every directory under the roots with fsnotify and evicts
// cached scripts as their files change.
func (r *Repository) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create script watcher")
	}
	for _, root := range r.roots {
		if err := addTree(w, root); err != nil {
			w.Close()
			return err
		}
	}

	r.watcher = w
	r.done = make(chan struct{})
	go r.watchLoop(ctx, w, r.done)
	return nil
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return errors.Wrapf(err, "watch %s", path)
		}
		return nil
	})
}

func (r *Repository) watchLoop(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	logger := ctxlog.FromContext(ctx)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				// A new file may shadow a script in a later root, and a new
				// directory needs watching too.
				_ = addTree(w, ev.Name)
				r.purge()
				logger.Debug("Script cache purged.", "path", ev.Name)
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				if name := r.evict(ev.Name); name != "" {
					logger.Debug("Script evicted from cache.", "script", name, "op", ev.Op.String())
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("Script watcher error.", "error", err)
		}
	}
}

func (r *Repository) purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.cache != nil {
		r.cache = map[string]*Script{}
	}
}

func (r *Repository) evict(path string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	for name, s := range r.cache {
		if s.Path == path {
			delete(r.cache, name)
			return name
		}
	}
	return ""
}
