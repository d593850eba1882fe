package workspace

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports saved and deleted workspace files after a debounce period.
type Watcher struct {
	source   *FileSource
	filter   *Filter
	onSave   func(ctx context.Context, path string)
	onDelete func(ctx context.Context, path string)

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Source       *FileSource
	Filter       *Filter
	OnSave       func(ctx context.Context, path string) // path is workspace-relative
	OnDelete     func(ctx context.Context, path string)
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	return &Watcher{
		source:       cfg.Source,
		filter:       cfg.Filter,
		onSave:       cfg.OnSave,
		onDelete:     cfg.OnDelete,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch starts watching for file changes.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(w.source.Root()); err != nil {
		return err
	}

	slog.Info("watching for file changes", "dir", w.source.Root())

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// addWatchDirs recursively adds directories below dir to the watch list.
func (w *Watcher) addWatchDirs(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		if w.filter.ExcludedDir(w.source.Rel(path)) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			slog.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// handleEvent processes a file system event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel := w.source.Rel(event.Name)

	// New directories need their own watch
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.filter.ExcludedDir(rel) {
				if err := w.addWatchDirs(event.Name); err != nil {
					slog.Warn("failed to watch new directory", "path", rel, "error", err)
				}
			}
			return
		}
	}

	if !w.filter.Include(rel) {
		return
	}

	// Add to pending with debounce
	w.pendingMu.Lock()
	w.pendingFiles[rel] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("file changed", "path", rel, "op", event.Op.String())
}

// processDebounced processes pending files after debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

// flush dispatches files that have been stable for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.pendingMu.Lock()
	var ready []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	for _, rel := range ready {
		if ctx.Err() != nil {
			return
		}
		w.dispatch(ctx, rel)
	}
}

// dispatch decides between save and delete by looking at the file as it is now.
func (w *Watcher) dispatch(ctx context.Context, rel string) {
	info, err := os.Stat(w.source.Abs(rel))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if w.onDelete != nil {
			w.onDelete(ctx, rel)
		}
	case err != nil:
		slog.Warn("failed to stat file", "file", rel, "error", err)
	case info.IsDir():
	default:
		if w.onSave != nil {
			w.onSave(ctx, rel)
		}
	}
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
