package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/butler/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Reload is called after a watched file settles.
type Reload func(ctx context.Context, path string) error

// Watcher calls a reload function when one of its files changes. It watches
// parent directories, so files replaced by rename are still seen.
type Watcher struct {
	debounce time.Duration
	files    map[string]Reload
}

// NewWatcher returns a watcher with no files.
func NewWatcher() *Watcher {
	return &Watcher{debounce: DefaultDebounce, files: map[string]Reload{}}
}

// WithDebounce sets the settle time.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch registers path. An empty path is ignored.
func (w *Watcher) Watch(path string, reload Reload) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	w.files[abs] = reload
	return nil
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.files) == 0 {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			slog.Error("close watcher", slog.Any("err", err))
		}
	}()

	dirs := map[string]struct{}{}
	for file := range w.files {
		dirs[filepath.Dir(file)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("add path to watcher: %w", err)
		}
	}

	logger := logging.WithContext(ctx)
	logger.Debug("added file watchers", slog.Int("files", len(w.files)), slog.Int("dirs", len(dirs)))

	pending := map[string]*time.Timer{}
	fired := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(evt.Name)
			if _, watched := w.files[name]; !watched {
				continue
			}
			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) || evt.Has(fsnotify.Remove) {
				continue
			}
			if t, ok := pending[name]; ok {
				t.Reset(w.debounce)
				continue
			}
			pending[name] = time.AfterFunc(w.debounce, func() {
				select {
				case fired <- name:
				case <-ctx.Done():
				}
			})

		case name := <-fired:
			delete(pending, name)
			logger.Info("file changed, reloading", slog.String("path", name))
			if err := w.files[name](ctx, name); err != nil {
				logger.Error("reload failed", slog.String("path", name), slog.Any("error", err))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watch error", slog.Any("error", err))
		}
	}
}
