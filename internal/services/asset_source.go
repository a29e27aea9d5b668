package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/repository"
)

// AssetSource lists local assets for the sync engine
type AssetSource interface {
	// QueryNewerThan returns every asset with AddedAt > threshold in
	// ascending AddedAt order. Failures wrap models.ErrSourceUnavailable.
	QueryNewerThan(ctx context.Context, threshold int64) ([]*models.Asset, error)
}

// IndexAssetSource serves assets from the local media index
type IndexAssetSource struct {
	index repository.MediaIndexRepo
}

// NewIndexAssetSource creates an AssetSource over the media index
func NewIndexAssetSource(index repository.MediaIndexRepo) *IndexAssetSource {
	return &IndexAssetSource{index: index}
}

// QueryNewerThan returns assets added after threshold, oldest first
func (s *IndexAssetSource) QueryNewerThan(ctx context.Context, threshold int64) ([]*models.Asset, error) {
	assets, err := s.index.QueryNewerThan(ctx, threshold)
	if err != nil {
		return nil, sourceUnavailable(err)
	}
	return assets, nil
}

// Recent returns the newest assets, newest first
func (s *IndexAssetSource) Recent(ctx context.Context, limit int) ([]*models.Asset, error) {
	assets, err := s.index.Recent(ctx, limit)
	if err != nil {
		return nil, sourceUnavailable(err)
	}
	return assets, nil
}

// PendingCount returns how many assets are newer than threshold
func (s *IndexAssetSource) PendingCount(ctx context.Context, threshold int64) (int, error) {
	count, err := s.index.CountNewerThan(ctx, threshold)
	if err != nil {
		return 0, sourceUnavailable(err)
	}
	return count, nil
}

func sourceUnavailable(err error) error {
	if errors.Is(err, models.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
}
