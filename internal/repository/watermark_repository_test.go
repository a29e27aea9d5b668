package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/photosync/photosync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWatermarkRepository_ReadDefaultsToZero(t *testing.T) {
	repo := NewWatermarkRepository(newTestDB(t), "device-1")

	value, err := repo.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), value)
}

func TestWatermarkRepository_Advance(t *testing.T) {
	ctx := context.Background()
	repo := NewWatermarkRepository(newTestDB(t), "device-1")

	require.NoError(t, repo.Advance(ctx, 100))
	require.NoError(t, repo.Advance(ctx, 110))

	value, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(110), value)

	t.Run("equal value is accepted", func(t *testing.T) {
		assert.NoError(t, repo.Advance(ctx, 110))
	})

	t.Run("regression is rejected and leaves value unchanged", func(t *testing.T) {
		err := repo.Advance(ctx, 105)
		assert.ErrorIs(t, err, models.ErrRegressionRejected)

		value, err := repo.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(110), value)
	})

	t.Run("negative value is rejected", func(t *testing.T) {
		assert.ErrorIs(t, repo.Advance(ctx, -1), models.ErrRegressionRejected)
	})
}

func TestWatermarkRepository_DurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	require.NoError(t, NewWatermarkRepository(db, "device-1").Advance(ctx, 4242))
	require.NoError(t, db.Close())

	db, err = NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()

	value, err := NewWatermarkRepository(db, "device-1").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), value)
}

func TestWatermarkRepository_DevicesAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, NewWatermarkRepository(db, "a").Advance(ctx, 500))
	require.NoError(t, NewWatermarkRepository(db, "b").Advance(ctx, 10))

	value, err := NewWatermarkRepository(db, "a").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), value)
}

func TestWatermarkRepository_ConcurrentAdvanceIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewWatermarkRepository(newTestDB(t), "device-1")

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			_ = repo.Advance(ctx, v)
		}(i)
	}
	wg.Wait()

	value, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), value)
}

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT a FROM t WHERE x = ? AND y IN (?, ?)"
	assert.Equal(t, query, dialectSQLite.rebind(query))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", dialectPostgres.rebind(query))
}
