package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
)

// PhotoRepository handles photo persistence
type PhotoRepository struct {
	db      *sql.DB
	dialect dialect
}

// NewPhotoRepository creates a PhotoRepository backed by SQLite
func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db, dialect: dialectSQLite}
}

// NewPhotoRepositoryPostgres creates a PhotoRepository backed by PostgreSQL
func NewPhotoRepositoryPostgres(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db, dialect: dialectPostgres}
}

const photoColumns = `id, original_filename, stored_path, file_hash, file_size, content_type,
		date_taken, uploaded_at, origin_device_id, thumb_path`

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := r.dialect.rebind(`SELECT ` + photoColumns + ` FROM photos WHERE id = ?`)

	photo, err := scanPhoto(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return photo, nil
}

// GetByHash retrieves a photo by its file hash
func (r *PhotoRepository) GetByHash(ctx context.Context, hash string) (*models.Photo, error) {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.system(), "SELECT", "photos")
	defer span.End()

	query := r.dialect.rebind(`SELECT ` + photoColumns + ` FROM photos WHERE file_hash = ?`)

	photo, err := scanPhoto(r.db.QueryRowContext(ctx, query, strings.ToLower(hash)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	return photo, nil
}

// GetExistingHashes returns which hashes from the list already exist
func (r *PhotoRepository) GetExistingHashes(ctx context.Context, hashes []string) ([]string, error) {
	if len(hashes) == 0 {
		return []string{}, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = strings.ToLower(h)
	}

	query := r.dialect.rebind(`SELECT file_hash FROM photos WHERE file_hash IN (` + strings.Join(placeholders, ",") + `)`)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := []string{}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		existing = append(existing, hash)
	}

	return existing, rows.Err()
}

// GetAll retrieves photos with pagination
func (r *PhotoRepository) GetAll(ctx context.Context, skip, take int) ([]*models.Photo, error) {
	query := r.dialect.rebind(`
		SELECT ` + photoColumns + `
		FROM photos
		ORDER BY date_taken DESC, id ASC
		LIMIT ? OFFSET ?
	`)

	rows, err := r.db.QueryContext(ctx, query, take, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []*models.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}

	return photos, rows.Err()
}

// GetCount returns the total number of photos
func (r *PhotoRepository) GetCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&count)
	return count, err
}

// Add inserts a new photo
func (r *PhotoRepository) Add(ctx context.Context, photo *models.Photo) error {
	ctx, span := observability.StartDBSpan(ctx, r.dialect.system(), "INSERT", "photos")
	defer span.End()

	query := r.dialect.rebind(`
		INSERT INTO photos (` + photoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		photo.ID,
		photo.OriginalFilename,
		photo.StoredPath,
		photo.FileHash,
		photo.FileSize,
		photo.ContentType,
		photo.DateTaken,
		photo.UploadedAt,
		nullString(photo.OriginDeviceID),
		nullString(photo.ThumbPath),
	)
	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}

// Delete removes a photo by ID
func (r *PhotoRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.rebind("DELETE FROM photos WHERE id = ?"), id)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var photo models.Photo
	var originDevice, thumbPath sql.NullString

	if err := row.Scan(
		&photo.ID,
		&photo.OriginalFilename,
		&photo.StoredPath,
		&photo.FileHash,
		&photo.FileSize,
		&photo.ContentType,
		&photo.DateTaken,
		&photo.UploadedAt,
		&originDevice,
		&thumbPath,
	); err != nil {
		return nil, err
	}

	if originDevice.Valid {
		photo.OriginDeviceID = &originDevice.String
	}
	if thumbPath.Valid {
		photo.ThumbPath = &thumbPath.String
	}
	return &photo, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
