package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mtiwari1/gophermedia/internal/media"
)

const (
	dbTimeout    = 2 * time.Second
	defaultLimit = 100
	columns      = "id, category, storage_path, mime_type, size, original_name, checksum, status, " +
		"processing_error, thumbnail_path, attributes, analysis, degraded, created_at, updated_at"
)

type dialect struct {
	name        string
	schema      []string
	isDuplicate func(error) bool
}

// SQLRepo implements Repository using prepared statements and context timeouts.
type SQLRepo struct {
	db         *sql.DB
	dialect    dialect
	now        func() time.Time
	stmtCreate *sql.Stmt
	stmtFind   *sql.Stmt
	stmtExists *sql.Stmt
}

// newSQLRepo prepares all statements up front. The caller owns the *sql.DB lifetime.
func newSQLRepo(db *sql.DB, d dialect) (*SQLRepo, error) {
	stmtCreate, err := db.Prepare("INSERT INTO media (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("prepare create: %w", err)
	}

	stmtFind, err := db.Prepare("SELECT " + columns + " FROM media WHERE id = ?")
	if err != nil {
		stmtCreate.Close()
		return nil, fmt.Errorf("prepare find: %w", err)
	}

	stmtExists, err := db.Prepare("SELECT 1 FROM media WHERE id = ?")
	if err != nil {
		stmtCreate.Close()
		stmtFind.Close()
		return nil, fmt.Errorf("prepare exists: %w", err)
	}

	return &SQLRepo{
		db:         db,
		dialect:    d,
		now:        func() time.Time { return time.Now().UTC() },
		stmtCreate: stmtCreate,
		stmtFind:   stmtFind,
		stmtExists: stmtExists,
	}, nil
}

// Migrate creates the media table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	d, err := dialectFor(driver)
	if err != nil {
		return err
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("repo migrate (%s): %w", d.name, err)
		}
	}
	return nil
}

// Create inserts a new media record.
func (r *SQLRepo) Create(ctx context.Context, rec *media.Record) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("repo create: %w", err)
	}
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = media.StatusPending
	}

	attrs, err := encodeJSON(rec.Attributes())
	if err != nil {
		return fmt.Errorf("repo create attributes: %w", err)
	}
	analysis, err := encodeJSON(rec.Analysis)
	if err != nil {
		return fmt.Errorf("repo create analysis: %w", err)
	}
	degraded, err := encodeJSON(rec.Degraded)
	if err != nil {
		return fmt.Errorf("repo create degraded: %w", err)
	}

	_, err = r.stmtCreate.ExecContext(ctx,
		rec.ID, string(rec.Category), rec.StoragePath, rec.MIMEType, rec.Size,
		rec.OriginalName, rec.Checksum, string(rec.Status),
		nullString(rec.ProcessingError), nullString(rec.ThumbnailPath),
		attrs, analysis, degraded,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return fmt.Errorf("repo create %s: %w", rec.ID, ErrDuplicate)
		}
		return fmt.Errorf("repo create: %w", err)
	}
	return nil
}

// Find retrieves a media record by UUID.
func (r *SQLRepo) Find(ctx context.Context, id string) (*media.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec, err := scanRecord(r.stmtFind.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repo find %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("repo find: %w", err)
	}
	return rec, nil
}

// Update applies the non-nil members of f in one UPDATE statement.
func (r *SQLRepo) Update(ctx context.Context, id string, f media.Fields) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	set, args, err := updateSet(f)
	if err != nil {
		return fmt.Errorf("repo update: %w", err)
	}
	set = append(set, "updated_at = ?")
	args = append(args, r.now(), id)

	res, err := r.db.ExecContext(ctx, "UPDATE media SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("repo update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var one int
		if err := r.stmtExists.QueryRowContext(ctx, id).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("repo update %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

func updateSet(f media.Fields) ([]string, []any, error) {
	var (
		set  []string
		args []any
	)
	if f.Status != nil {
		set = append(set, "status = ?")
		args = append(args, string(*f.Status))
	}
	switch {
	case f.ProcessingError != nil:
		set = append(set, "processing_error = ?")
		args = append(args, *f.ProcessingError)
	case f.ClearError:
		set = append(set, "processing_error = NULL")
	}
	if f.ThumbnailPath != nil {
		set = append(set, "thumbnail_path = ?")
		args = append(args, *f.ThumbnailPath)
	}
	if f.Attributes != nil {
		v, err := encodeJSON(f.Attributes)
		if err != nil {
			return nil, nil, fmt.Errorf("attributes: %w", err)
		}
		set = append(set, "attributes = ?")
		args = append(args, v)
	}
	if f.Analysis != nil {
		v, err := encodeJSON(f.Analysis)
		if err != nil {
			return nil, nil, fmt.Errorf("analysis: %w", err)
		}
		set = append(set, "analysis = ?")
		args = append(args, v)
	}
	switch {
	case len(f.Degraded) > 0:
		v, err := encodeJSON(f.Degraded)
		if err != nil {
			return nil, nil, fmt.Errorf("degraded: %w", err)
		}
		set = append(set, "degraded = ?")
		args = append(args, v)
	case f.ClearDegraded:
		set = append(set, "degraded = NULL")
	}
	return set, args, nil
}

// List retrieves records ordered by most recent first.
func (r *SQLRepo) List(ctx context.Context, f Filter) ([]*media.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}

	q := "SELECT " + columns + " FROM media"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repo list: %w", err)
	}
	defer rows.Close()

	records := []*media.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("repo list scan: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases all prepared statements.
func (r *SQLRepo) Close() error {
	for _, s := range []*sql.Stmt{r.stmtCreate, r.stmtFind, r.stmtExists} {
		if s != nil {
			s.Close()
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*media.Record, error) {
	var (
		rec                       media.Record
		category, status          string
		procErr, thumb            sql.NullString
		attrs, analysis, degraded []byte
	)
	err := s.Scan(
		&rec.ID, &category, &rec.StoragePath, &rec.MIMEType, &rec.Size,
		&rec.OriginalName, &rec.Checksum, &status,
		&procErr, &thumb, &attrs, &analysis, &degraded,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Category = media.Category(category)
	rec.Status = media.Status(status)
	if procErr.Valid {
		rec.ProcessingError = &procErr.String
	}
	if thumb.Valid {
		rec.ThumbnailPath = &thumb.String
	}
	if err := decodeAttributes(&rec, attrs); err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		var a media.Analysis
		if err := json.Unmarshal(analysis, &a); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		rec.Analysis = &a
	}
	if len(degraded) > 0 {
		if err := json.Unmarshal(degraded, &rec.Degraded); err != nil {
			return nil, fmt.Errorf("decode degraded: %w", err)
		}
	}
	return &rec, nil
}

func decodeAttributes(rec *media.Record, raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var target any
	switch rec.Category {
	case media.CategoryImage:
		rec.Image = &media.ImageAttributes{}
		target = rec.Image
	case media.CategoryVideo:
		rec.Video = &media.VideoAttributes{}
		target = rec.Video
	case media.CategoryDocument:
		rec.Document = &media.DocumentAttributes{}
		target = rec.Document
	case media.CategoryAudio:
		rec.Audio = &media.AudioAttributes{}
		target = rec.Audio
	case media.CategoryArchive:
		rec.Archive = &media.ArchiveAttributes{}
		target = rec.Archive
	default:
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s attributes: %w", rec.Category, err)
	}
	return nil
}

// encodeJSON returns nil for nil values so the column stays NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
