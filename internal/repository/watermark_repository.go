package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// WatermarkRepository stores the sync watermark of one device
type WatermarkRepository struct {
	db       *sql.DB
	dialect  dialect
	deviceID string
}

// NewWatermarkRepository creates a WatermarkRepository backed by SQLite
func NewWatermarkRepository(db *sql.DB, deviceID string) *WatermarkRepository {
	return &WatermarkRepository{db: db, dialect: dialectSQLite, deviceID: deviceID}
}

// NewWatermarkRepositoryPostgres creates a WatermarkRepository backed by PostgreSQL
func NewWatermarkRepositoryPostgres(db *sql.DB, deviceID string) *WatermarkRepository {
	return &WatermarkRepository{db: db, dialect: dialectPostgres, deviceID: deviceID}
}

// Read returns the stored watermark, or 0 if none has been written
func (r *WatermarkRepository) Read(ctx context.Context) (int64, error) {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.system(), "SELECT", "sync_watermark")
	defer span.End()

	query := r.dialect.rebind(`SELECT value FROM sync_watermark WHERE device_id = ?`)

	var value int64
	err := r.db.QueryRowContext(ctx, query, r.deviceID).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}

	return value, nil
}

// Advance stores value as the new watermark.
// The comparison and the write happen in one statement, so a value below
// the stored one leaves the row untouched and reports a regression.
func (r *WatermarkRepository) Advance(ctx context.Context, value int64) error {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.system(), "UPSERT", "sync_watermark")
	defer span.End()
	span.SetAttributes(observability.Watermark(value), observability.DeviceID(r.deviceID))

	if value < 0 {
		err := fmt.Errorf("%w: negative value %d", models.ErrRegressionRejected, value)
		observability.RecordError(span, err)
		return err
	}

	query := r.dialect.rebind(`
		INSERT INTO sync_watermark (device_id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at
		WHERE excluded.value >= sync_watermark.value
	`)

	result, err := r.db.ExecContext(ctx, query, r.deviceID, value, time.Now().UTC())
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to advance watermark: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	if affected == 0 {
		current, readErr := r.Read(ctx)
		if readErr != nil {
			current = -1
		}
		err := fmt.Errorf("%w: %d is behind stored value %d", models.ErrRegressionRejected, value, current)
		observability.RecordError(span, err)
		return err
	}

	observability.SetSuccess(span)
	return nil
}
