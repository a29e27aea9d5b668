package repository

import (
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		original_filename TEXT NOT NULL,
		stored_path TEXT NOT NULL,
		file_hash TEXT NOT NULL UNIQUE,
		file_size BIGINT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
		date_taken TIMESTAMPTZ NOT NULL,
		uploaded_at TIMESTAMPTZ NOT NULL,
		origin_device_id TEXT,
		thumb_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_photos_date ON photos(date_taken);

	CREATE TABLE IF NOT EXISTS sync_watermark (
		device_id TEXT PRIMARY KEY,
		value BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_stats (
		device_id TEXT PRIMARY KEY,
		photos_synced BIGINT NOT NULL DEFAULT 0,
		last_photo TEXT,
		last_sync_at TIMESTAMPTZ,
		last_status TEXT,
		last_summary TEXT
	);
	`

	_, err := db.Exec(schema)
	return err
}

// dialect selects placeholder syntax for queries shared by both databases
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// system is the db.system name reported on spans
func (d dialect) system() string {
	if d == dialectPostgres {
		return "postgresql"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
