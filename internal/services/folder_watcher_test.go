package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/stretchr/testify/assert"
)

type recordingIndexer struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIndexer) IsPhoto(path string) bool {
	return strings.HasSuffix(path, ".jpg")
}

func (r *recordingIndexer) IndexFile(_ context.Context, path string) (*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return testAsset(filepath.Base(path), 1), nil
}

func (r *recordingIndexer) indexed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestFolderWatcher_FlushWaitsForSettle(t *testing.T) {
	indexer := &recordingIndexer{}
	w := NewFolderWatcher(t.TempDir(), indexer, time.Second)
	now := time.Now()

	w.touch("/photos/a.jpg", now)
	w.touch("/photos/notes.txt", now)
	assert.Equal(t, 1, w.Pending())

	assert.Equal(t, 0, w.flush(context.Background(), now.Add(500*time.Millisecond)))
	assert.Empty(t, indexer.indexed())

	w.touch("/photos/a.jpg", now.Add(600*time.Millisecond))
	assert.Equal(t, 0, w.flush(context.Background(), now.Add(time.Second)))

	assert.Equal(t, 1, w.flush(context.Background(), now.Add(2*time.Second)))
	assert.Equal(t, []string{"/photos/a.jpg"}, indexer.indexed())
	assert.Equal(t, 0, w.Pending())
}

func TestFolderWatcher_ForgetsRemovedFiles(t *testing.T) {
	indexer := &recordingIndexer{}
	w := NewFolderWatcher(t.TempDir(), indexer, time.Second)
	now := time.Now()

	w.touch("/photos/a.jpg", now)
	w.forget("/photos/a.jpg")

	assert.Equal(t, 0, w.flush(context.Background(), now.Add(time.Hour)))
}

func TestFolderWatcher_IndexesNewFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	indexer := &recordingIndexer{}
	w := NewFolderWatcher(root, indexer, 40*time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(root, "a.jpg"), "a")
	writeFile(t, filepath.Join(root, "nested", "b.jpg"), "b")
	writeFile(t, filepath.Join(root, "skip.txt"), "c")

	assert.Eventually(t, func() bool {
		return len(indexer.indexed()) == 2
	}, 3*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t,
		[]string{filepath.Join(root, "a.jpg"), filepath.Join(root, "nested", "b.jpg")},
		indexer.indexed())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
