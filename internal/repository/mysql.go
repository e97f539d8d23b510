package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{`CREATE TABLE IF NOT EXISTS media (
	id               CHAR(36)     NOT NULL PRIMARY KEY,
	category         VARCHAR(16)  NOT NULL,
	storage_path     VARCHAR(512) NOT NULL,
	mime_type        VARCHAR(255) NOT NULL,
	size             BIGINT       NOT NULL,
	original_name    VARCHAR(255) NOT NULL DEFAULT '',
	checksum         VARCHAR(64)  NOT NULL DEFAULT '',
	status           VARCHAR(16)  NOT NULL,
	processing_error TEXT         NULL,
	thumbnail_path   VARCHAR(512) NULL,
	attributes       JSON         NULL,
	analysis         JSON         NULL,
	degraded         JSON         NULL,
	created_at       DATETIME(6)  NOT NULL,
	updated_at       DATETIME(6)  NOT NULL,
	INDEX idx_media_status (status),
	INDEX idx_media_category_created (category, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	isDuplicate: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
	},
}

// NewMySQLRepo prepares statements against a MySQL database opened with
// parseTime=true.
func NewMySQLRepo(db *sql.DB) (*SQLRepo, error) {
	return newSQLRepo(db, mysqlDialect)
}
