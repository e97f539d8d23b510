package repository

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS media (
	id               TEXT     NOT NULL PRIMARY KEY,
	category         TEXT     NOT NULL,
	storage_path     TEXT     NOT NULL,
	mime_type        TEXT     NOT NULL,
	size             INTEGER  NOT NULL,
	original_name    TEXT     NOT NULL DEFAULT '',
	checksum         TEXT     NOT NULL DEFAULT '',
	status           TEXT     NOT NULL,
	processing_error TEXT,
	thumbnail_path   TEXT,
	attributes       TEXT,
	analysis         TEXT,
	degraded         TEXT,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_media_status ON media (status)`,
		`CREATE INDEX IF NOT EXISTS idx_media_category_created ON media (category, created_at)`,
	},
	isDuplicate: func(err error) bool {
		var se sqlite3.Error
		if !errors.As(err, &se) {
			return false
		}
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

// NewSQLiteRepo prepares statements against a SQLite database. SQLite
// serialises writers, so callers should cap the pool at one connection.
func NewSQLiteRepo(db *sql.DB) (*SQLRepo, error) {
	return newSQLRepo(db, sqliteDialect)
}
