package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPhoto(t *testing.T, name, hash string, taken time.Time) *models.Photo {
	t.Helper()
	photo, err := models.NewPhoto(name, "2024/03/"+name, hash, "image/jpeg", 1024, taken)
	require.NoError(t, err)
	return photo
}

func TestPhotoRepository_AddAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPhotoRepository(newTestDB(t))

	device := "pixel-7"
	photo := newTestPhoto(t, "IMG_1.jpg", strings.Repeat("a", 64), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	photo.OriginDeviceID = &device
	require.NoError(t, repo.Add(ctx, photo))

	byID, err := repo.GetByID(ctx, photo.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "IMG_1.jpg", byID.OriginalFilename)
	require.NotNil(t, byID.OriginDeviceID)
	assert.Equal(t, "pixel-7", *byID.OriginDeviceID)
	assert.Nil(t, byID.ThumbPath)

	byHash, err := repo.GetByHash(ctx, strings.Repeat("A", 64))
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, photo.ID, byHash.ID)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPhotoRepository_DuplicateHashRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewPhotoRepository(newTestDB(t))
	hash := strings.Repeat("b", 64)

	require.NoError(t, repo.Add(ctx, newTestPhoto(t, "a.jpg", hash, time.Now())))
	assert.Error(t, repo.Add(ctx, newTestPhoto(t, "b.jpg", hash, time.Now())))
}

func TestPhotoRepository_ListCountDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewPhotoRepository(newTestDB(t))

	older := newTestPhoto(t, "old.jpg", strings.Repeat("1", 64), time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := newTestPhoto(t, "new.jpg", strings.Repeat("2", 64), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Add(ctx, older))
	require.NoError(t, repo.Add(ctx, newer))

	photos, err := repo.GetAll(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, newer.ID, photos[0].ID)

	count, err := repo.GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	existing, err := repo.GetExistingHashes(ctx, []string{strings.Repeat("1", 64), strings.Repeat("9", 64)})
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("1", 64)}, existing)

	deleted, err := repo.Delete(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, older.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSyncStatsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSyncStatsRepository(newTestDB(t))

	empty, err := repo.Get(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.PhotosSynced)
	assert.Nil(t, empty.LastSyncAt)

	empty.Apply(models.SyncResult{
		Status:       models.RunCompleted,
		Succeeded:    3,
		LastUploaded: "IMG_3.jpg",
		StartedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, repo.Save(ctx, empty))

	stored, err := repo.Get(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.PhotosSynced)
	assert.Equal(t, "IMG_3.jpg", stored.LastPhoto)
	assert.Equal(t, "completed", stored.LastStatus)
	assert.Equal(t, "sync complete: 3 uploaded", stored.LastSummary)
	require.NotNil(t, stored.LastSyncAt)
	assert.True(t, stored.LastSyncAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
}
