package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/photosync/photosync/internal/clock"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingListener struct {
	mu     sync.Mutex
	assets []*models.Asset
}

func (l *collectingListener) OnIndexed(a *models.Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets = append(l.assets, a)
}

func (l *collectingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.assets)
}

func setupIndexer(t *testing.T, clk clock.Clock) (*MediaIndexer, *repository.MediaIndexRepository) {
	t.Helper()
	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewMediaIndexRepository(db)
	return NewMediaIndexer(repo, NewHashService(), NewEXIFService(), clk, nil), repo
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestMediaIndexer_IndexFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fake := clock.NewFakeClock(time.Unix(1_700_000_000, 0))
	indexer, repo := setupIndexer(t, fake)
	listener := &collectingListener{}
	indexer.AddListener(listener)

	t.Run("indexes a photo", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "IMG_0001.JPG"), "jpeg bytes")

		a, err := indexer.IndexFile(ctx, path)

		require.NoError(t, err)
		require.NotNil(t, a)
		assert.Equal(t, "IMG_0001.JPG", a.Name)
		assert.Equal(t, int64(1_700_000_000), a.AddedAt)
		assert.Equal(t, int64(10), a.Size)
		assert.Len(t, a.Hash, 64)
		assert.Equal(t, 1, listener.count())

		stored, err := repo.GetByPath(ctx, path)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, a.ID, stored.ID)
	})

	t.Run("is idempotent on path", func(t *testing.T) {
		a, err := indexer.IndexFile(ctx, filepath.Join(dir, "IMG_0001.JPG"))
		require.NoError(t, err)
		assert.Nil(t, a)
		assert.Equal(t, 1, listener.count())
	})

	t.Run("skips non-photos and hidden files", func(t *testing.T) {
		for _, name := range []string{"notes.txt", ".hidden.jpg"} {
			a, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, name), "data"))
			require.NoError(t, err)
			assert.Nil(t, a, name)
		}
	})

	t.Run("skips empty files until they have content", func(t *testing.T) {
		path := writeFile(t, filepath.Join(dir, "partial.png"), "")

		a, err := indexer.IndexFile(ctx, path)
		require.NoError(t, err)
		assert.Nil(t, a)

		writeFile(t, path, "now complete")
		a, err = indexer.IndexFile(ctx, path)
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := indexer.IndexFile(ctx, filepath.Join(dir, "missing.jpg"))
		assert.Error(t, err)
	})
}

func TestMediaIndexer_AddedAtStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fake := clock.NewFakeClock(time.Unix(1000, 0))
	indexer, repo := setupIndexer(t, fake)

	a1, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, "a.jpg"), "a"))
	require.NoError(t, err)
	a2, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, "b.jpg"), "b"))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), a1.AddedAt)
	assert.Equal(t, int64(1001), a2.AddedAt)

	fake.Advance(time.Hour)
	a3, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, "c.jpg"), "c"))
	require.NoError(t, err)
	assert.Equal(t, int64(4600), a3.AddedAt)

	fake.Set(time.Unix(10, 0))
	a4, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, "d.jpg"), "d"))
	require.NoError(t, err)
	assert.Equal(t, int64(4601), a4.AddedAt)

	newer, err := repo.QueryNewerThan(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, "c.jpg", newer[0].Name)
}

func TestMediaIndexer_ScanFolder(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2024", "a.jpg"), "a")
	writeFile(t, filepath.Join(root, "2024", "05", "b.heic"), "b")
	writeFile(t, filepath.Join(root, "c.png"), "c")
	writeFile(t, filepath.Join(root, "readme.txt"), "text")
	writeFile(t, filepath.Join(root, ".thumbs", "d.jpg"), "d")
	writeFile(t, filepath.Join(root, "empty.jpg"), "")

	indexer, repo := setupIndexer(t, clock.NewFakeClock(time.Unix(5000, 0)))

	summary, err := indexer.ScanFolder(ctx, root)

	require.NoError(t, err)
	assert.Equal(t, 4, summary.FilesScanned)
	assert.Equal(t, 3, summary.Indexed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Errors)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	t.Run("rescan indexes nothing new", func(t *testing.T) {
		again, err := indexer.ScanFolder(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Indexed)
		assert.Equal(t, 4, again.Skipped)
	})

	t.Run("rejects a file as root", func(t *testing.T) {
		_, err := indexer.ScanFolder(ctx, filepath.Join(root, "c.png"))
		assert.Error(t, err)
	})
}

func TestIndexAssetSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	indexer, repo := setupIndexer(t, clock.NewFakeClock(time.Unix(100, 0)))
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		_, err := indexer.IndexFile(ctx, writeFile(t, filepath.Join(dir, name), name))
		require.NoError(t, err)
	}
	source := NewIndexAssetSource(repo)

	assets, err := source.QueryNewerThan(ctx, 100)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, int64(101), assets[0].AddedAt)
	assert.Equal(t, int64(102), assets[1].AddedAt)

	pending, err := source.PendingCount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	recent, err := source.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c.jpg", recent[0].Name)
}

type brokenIndex struct {
	repository.MediaIndexRepo
}

func (brokenIndex) QueryNewerThan(context.Context, int64) ([]*models.Asset, error) {
	return nil, errStoreDown
}

func TestIndexAssetSource_WrapsFailures(t *testing.T) {
	_, err := NewIndexAssetSource(brokenIndex{}).QueryNewerThan(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "permission denied")
}
