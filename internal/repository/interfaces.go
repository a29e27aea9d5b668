package repository

import (
	"context"

	"github.com/photosync/photosync/internal/models"
)

// PhotoRepo defines the interface for photo persistence operations
type PhotoRepo interface {
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	GetByHash(ctx context.Context, hash string) (*models.Photo, error)
	GetExistingHashes(ctx context.Context, hashes []string) ([]string, error)
	GetAll(ctx context.Context, skip, take int) ([]*models.Photo, error)
	GetCount(ctx context.Context) (int, error)
	Add(ctx context.Context, photo *models.Photo) error
	Delete(ctx context.Context, id string) (bool, error)
}

// WatermarkRepo persists the sync watermark of one device.
// Advance rejects values below the stored one with models.ErrRegressionRejected.
type WatermarkRepo interface {
	Read(ctx context.Context) (int64, error)
	Advance(ctx context.Context, value int64) error
}

// MediaIndexRepo defines the interface for the local media index
type MediaIndexRepo interface {
	Add(ctx context.Context, asset *models.Asset) (bool, error)
	Append(ctx context.Context, asset *models.Asset) (bool, error)
	GetByPath(ctx context.Context, path string) (*models.Asset, error)
	QueryNewerThan(ctx context.Context, threshold int64) ([]*models.Asset, error)
	Recent(ctx context.Context, limit int) ([]*models.Asset, error)
	Count(ctx context.Context) (int, error)
	CountNewerThan(ctx context.Context, threshold int64) (int, error)
}

// SyncStatsRepo defines the interface for cumulative sync statistics
type SyncStatsRepo interface {
	Get(ctx context.Context, deviceID string) (*models.SyncStats, error)
	Save(ctx context.Context, stats *models.SyncStats) error
}
