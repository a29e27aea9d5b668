package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// FileIndexer indexes a single settled file
type FileIndexer interface {
	IsPhoto(path string) bool
	IndexFile(ctx context.Context, path string) (*models.Asset, error)
}

// FolderWatcher watches a directory tree and indexes photos once they stop
// changing. Files still being written keep resetting their settle timer.
type FolderWatcher struct {
	root    string
	indexer FileIndexer
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewFolderWatcher creates a new FolderWatcher
func NewFolderWatcher(root string, indexer FileIndexer, settle time.Duration) *FolderWatcher {
	if settle <= 0 {
		settle = time.Second
	}
	return &FolderWatcher{
		root:    root,
		indexer: indexer,
		settle:  settle,
		pending: make(map[string]time.Time),
	}
}

// Start watches until ctx is done
func (w *FolderWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root, false); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	observability.WithContext(ctx).Infof("watching %s for new photos", w.root)

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			observability.WithContext(ctx).WithError(err).Warn("file watcher error")

		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

func (w *FolderWatcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.forget(event.Name)
		}
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return
			}
			// Files copied in with the directory produce no events of their own.
			if err := w.addTree(watcher, event.Name, true); err != nil {
				observability.GetLogger().WithError(err).Warn("failed to watch new directory")
			}
			return
		}
	}

	w.touch(event.Name, time.Now())
}

// addTree watches dir and every non-hidden directory below it. With
// markFiles set, photos already present are queued for indexing.
func (w *FolderWatcher) addTree(watcher *fsnotify.Watcher, dir string, markFiles bool) error {
	now := time.Now()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		if markFiles {
			w.touch(path, now)
		}
		return nil
	})
}

func (w *FolderWatcher) touch(path string, at time.Time) {
	if !w.indexer.IsPhoto(path) {
		return
	}
	w.mu.Lock()
	w.pending[path] = at
	w.mu.Unlock()
}

func (w *FolderWatcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// flush indexes every pending path that has been quiet for the settle delay
func (w *FolderWatcher) flush(ctx context.Context, now time.Time) int {
	w.mu.Lock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if _, err := w.indexer.IndexFile(ctx, path); err != nil {
			observability.WithContext(ctx).WithError(err).Warnf("failed to index %s", path)
		}
	}
	return len(ready)
}

// Pending returns how many files are waiting to settle
func (w *FolderWatcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
