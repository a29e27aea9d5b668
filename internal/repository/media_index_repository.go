package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// MediaIndexRepository handles the agent's local media index
type MediaIndexRepository struct {
	db *sql.DB
}

// NewMediaIndexRepository creates a new MediaIndexRepository
func NewMediaIndexRepository(db *sql.DB) *MediaIndexRepository {
	return &MediaIndexRepository{db: db}
}

const mediaIndexColumns = `id, name, path, added_at, file_size, file_hash, date_taken`

// Add inserts an asset with its added_at as given, unless its path is
// already indexed. It reports whether a new row was written.
func (r *MediaIndexRepository) Add(ctx context.Context, asset *models.Asset) (bool, error) {
	ctx, span := observability.StartDBSpan(ctx, "sqlite", "INSERT", "media_index")
	defer span.End()

	hash, dateTaken := nullableAssetFields(asset)

	query := `
		INSERT INTO media_index (` + mediaIndexColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		asset.ID,
		asset.Name,
		asset.Path,
		asset.AddedAt,
		asset.Size,
		hash,
		dateTaken,
	)
	if err != nil {
		observability.RecordError(span, err)
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Append inserts an asset unless its path is already indexed, stamping it
// after every row already in the index. asset.AddedAt is a lower bound; the
// stored value is max(asset.AddedAt, newest+1), computed by the insert
// itself so that concurrent writers to the same file never produce a tie.
// On insert asset.AddedAt is updated to the stored value.
func (r *MediaIndexRepository) Append(ctx context.Context, asset *models.Asset) (bool, error) {
	ctx, span := observability.StartDBSpan(ctx, "sqlite", "INSERT", "media_index")
	defer span.End()

	hash, dateTaken := nullableAssetFields(asset)

	// WHERE true keeps ON CONFLICT from parsing as a join constraint.
	query := `
		INSERT INTO media_index (` + mediaIndexColumns + `)
		SELECT ?, ?, ?, MAX(?, COALESCE(MAX(added_at), 0) + 1), ?, ?, ?
		FROM media_index WHERE true
		ON CONFLICT(path) DO NOTHING
		RETURNING added_at
	`

	var addedAt int64
	err := r.db.QueryRowContext(ctx, query,
		asset.ID,
		asset.Name,
		asset.Path,
		asset.AddedAt,
		asset.Size,
		hash,
		dateTaken,
	).Scan(&addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return false, err
	}

	asset.AddedAt = addedAt
	return true, nil
}

func nullableAssetFields(asset *models.Asset) (sql.NullString, sql.NullTime) {
	var hash sql.NullString
	if asset.Hash != "" {
		hash = sql.NullString{String: asset.Hash, Valid: true}
	}
	var dateTaken sql.NullTime
	if asset.DateTaken != nil {
		dateTaken = sql.NullTime{Time: asset.DateTaken.UTC(), Valid: true}
	}
	return hash, dateTaken
}

// GetByPath retrieves an indexed asset by its file path
func (r *MediaIndexRepository) GetByPath(ctx context.Context, path string) (*models.Asset, error) {
	query := `SELECT ` + mediaIndexColumns + ` FROM media_index WHERE path = ?`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// QueryNewerThan returns all assets added strictly after threshold,
// oldest first with ties broken by id.
func (r *MediaIndexRepository) QueryNewerThan(ctx context.Context, threshold int64) ([]*models.Asset, error) {
	ctx, span := observability.StartDBSpan(ctx, "sqlite", "SELECT", "media_index")
	defer span.End()

	query := `
		SELECT ` + mediaIndexColumns + `
		FROM media_index
		WHERE added_at > ?
		ORDER BY added_at ASC, id ASC
	`

	assets, err := r.queryAssets(ctx, query, threshold)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return assets, nil
}

// Recent returns the newest assets, newest first
func (r *MediaIndexRepository) Recent(ctx context.Context, limit int) ([]*models.Asset, error) {
	query := `
		SELECT ` + mediaIndexColumns + `
		FROM media_index
		ORDER BY added_at DESC, id DESC
		LIMIT ?
	`
	return r.queryAssets(ctx, query, limit)
}

// Count returns the number of indexed assets
func (r *MediaIndexRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_index`).Scan(&count)
	return count, err
}

// CountNewerThan returns the number of assets added after threshold
func (r *MediaIndexRepository) CountNewerThan(ctx context.Context, threshold int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_index WHERE added_at > ?`, threshold).Scan(&count)
	return count, err
}

func (r *MediaIndexRepository) queryAssets(ctx context.Context, query string, args ...interface{}) ([]*models.Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []*models.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(row rowScanner) (*models.Asset, error) {
	var asset models.Asset
	var hash sql.NullString
	var dateTaken sql.NullTime

	if err := row.Scan(
		&asset.ID,
		&asset.Name,
		&asset.Path,
		&asset.AddedAt,
		&asset.Size,
		&hash,
		&dateTaken,
	); err != nil {
		return nil, err
	}

	asset.Hash = hash.String
	if dateTaken.Valid {
		t := dateTaken.Time.In(time.UTC)
		asset.DateTaken = &t
	}
	return &asset, nil
}
