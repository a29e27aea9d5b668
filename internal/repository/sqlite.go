package repository

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}

	// The agent's watcher, triggers and status server share this file.
	db, err := sql.Open("sqlite3", dbPath+sep+"_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Photos received by the intake server
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		original_filename TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		file_hash TEXT NOT NULL UNIQUE,
		file_size INTEGER NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
		date_taken DATETIME NOT NULL,
		uploaded_at DATETIME NOT NULL,
		origin_device_id TEXT,
		thumb_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_photos_date ON photos(date_taken);

	-- Local media index populated by the agent's indexer
	CREATE TABLE IF NOT EXISTS media_index (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		added_at INTEGER NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		file_hash TEXT,
		date_taken DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_media_index_added_at ON media_index(added_at, id);

	-- Sync watermark, one row per device
	CREATE TABLE IF NOT EXISTS sync_watermark (
		device_id TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Cumulative sync statistics, one row per device
	CREATE TABLE IF NOT EXISTS sync_stats (
		device_id TEXT PRIMARY KEY,
		photos_synced INTEGER NOT NULL DEFAULT 0,
		last_photo TEXT,
		last_sync_at DATETIME,
		last_status TEXT,
		last_summary TEXT
	);
	`

	_, err := db.Exec(schema)
	return err
}
