package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "mysql":
		return mysqlDialect, nil
	case "sqlite3", "sqlite":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("repository: unsupported driver %q", driver)
	}
}

// Open connects to the configured database, verifies connectivity, applies
// the schema and returns a ready repository. The caller closes both.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, *SQLRepo, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if d.name == sqliteDialect.name {
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if err := Migrate(ctx, db, d.name); err != nil {
		db.Close()
		return nil, nil, err
	}

	repo, err := newSQLRepo(db, d)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, repo, nil
}
