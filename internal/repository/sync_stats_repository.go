package repository

import (
	"context"
	"database/sql"

	"github.com/photosync/photosync/internal/models"
)

// SyncStatsRepository persists cumulative sync statistics per device
type SyncStatsRepository struct {
	db      *sql.DB
	dialect dialect
}

// NewSyncStatsRepository creates a SyncStatsRepository backed by SQLite
func NewSyncStatsRepository(db *sql.DB) *SyncStatsRepository {
	return &SyncStatsRepository{db: db, dialect: dialectSQLite}
}

// NewSyncStatsRepositoryPostgres creates a SyncStatsRepository backed by PostgreSQL
func NewSyncStatsRepositoryPostgres(db *sql.DB) *SyncStatsRepository {
	return &SyncStatsRepository{db: db, dialect: dialectPostgres}
}

// Get returns the statistics of a device, or empty statistics if none are stored
func (r *SyncStatsRepository) Get(ctx context.Context, deviceID string) (*models.SyncStats, error) {
	query := r.dialect.rebind(`
		SELECT photos_synced, last_photo, last_sync_at, last_status, last_summary
		FROM sync_stats WHERE device_id = ?
	`)

	stats := models.NewSyncStats(deviceID)
	var lastPhoto, lastStatus, lastSummary sql.NullString
	var lastSyncAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&stats.PhotosSynced,
		&lastPhoto,
		&lastSyncAt,
		&lastStatus,
		&lastSummary,
	)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}

	stats.LastPhoto = lastPhoto.String
	stats.LastStatus = lastStatus.String
	stats.LastSummary = lastSummary.String
	if lastSyncAt.Valid {
		t := lastSyncAt.Time.UTC()
		stats.LastSyncAt = &t
	}
	return stats, nil
}

// Save writes the statistics of a device
func (r *SyncStatsRepository) Save(ctx context.Context, stats *models.SyncStats) error {
	query := r.dialect.rebind(`
		INSERT INTO sync_stats (device_id, photos_synced, last_photo, last_sync_at, last_status, last_summary)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			photos_synced = excluded.photos_synced,
			last_photo = excluded.last_photo,
			last_sync_at = excluded.last_sync_at,
			last_status = excluded.last_status,
			last_summary = excluded.last_summary
	`)

	var lastSyncAt sql.NullTime
	if stats.LastSyncAt != nil {
		lastSyncAt = sql.NullTime{Time: *stats.LastSyncAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		stats.DeviceID,
		stats.PhotosSynced,
		nullString(&stats.LastPhoto),
		lastSyncAt,
		nullString(&stats.LastStatus),
		nullString(&stats.LastSummary),
	)
	return err
}
