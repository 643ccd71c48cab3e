// Package catalog records committed renders in PostgreSQL. The catalog is
// optional: with no DSN configured a no-op writer is used and publishing
// proceeds without it.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/daymark/mandalagen/internal/calendar"
)

//go:embed schema.sql
var schemaSQL string

// RenderRecord describes one committed (image, date) render.
type RenderRecord struct {
	Image       string
	Date        calendar.Date
	RunID       string
	Checksum    string
	StorageURI  string
	ByteSize    int64
	Width       int
	ViewCount   int64
	Keyword     string
	Permutation int
	Offset      int
	OffsetX     int
	OffsetY     int
	RenderedAt  time.Time
}

// Writer records renders and answers idempotency checks.
type Writer interface {
	RenderExists(ctx context.Context, image string, date calendar.Date) (bool, error)
	RecordRender(ctx context.Context, rec RenderRecord) error
	Close() error
}

// NewWriter returns a Postgres writer, or a no-op writer when dsn is empty.
func NewWriter(dsn string) (Writer, error) {
	if dsn == "" {
		return noopWriter{}, nil
	}
	return newPostgresWriter(dsn)
}

type noopWriter struct{}

func (noopWriter) RenderExists(context.Context, string, calendar.Date) (bool, error) {
	return false, nil
}
func (noopWriter) RecordRender(context.Context, RenderRecord) error { return nil }
func (noopWriter) Close() error                                     { return nil }

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	db *sqlx.DB
}

func newPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect render catalog: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog schema: %w", err)
	}

	return &PostgresWriter{db: db}, nil
}

// RenderExists reports whether a render was already committed for the pair.
func (w *PostgresWriter) RenderExists(ctx context.Context, image string, date calendar.Date) (bool, error) {
	var one int
	err := w.db.GetContext(ctx, &one, `
		SELECT 1 FROM renders WHERE image_name = $1 AND render_date = $2
	`, image, date.Time())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check render %s@%s: %w", image, date, err)
	}
	return true, nil
}

// RecordRender inserts a committed render. Re-recording the same pair
// replaces the previous row.
func (w *PostgresWriter) RecordRender(ctx context.Context, rec RenderRecord) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO renders (
			image_name, render_date, run_id, checksum, storage_uri, byte_size,
			width, view_count, keyword, permutation, pixel_offset, offset_x, offset_y, rendered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (image_name, render_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			checksum = EXCLUDED.checksum,
			storage_uri = EXCLUDED.storage_uri,
			byte_size = EXCLUDED.byte_size,
			rendered_at = EXCLUDED.rendered_at
	`, rec.Image, rec.Date.Time(), rec.RunID, rec.Checksum, rec.StorageURI, rec.ByteSize,
		rec.Width, rec.ViewCount, rec.Keyword, rec.Permutation, rec.Offset, rec.OffsetX, rec.OffsetY,
		rec.RenderedAt)
	if err != nil {
		return fmt.Errorf("record render %s@%s: %w", rec.Image, rec.Date, err)
	}
	return nil
}

// Close releases the database handle.
func (w *PostgresWriter) Close() error {
	return w.db.Close()
}

// Verify PostgresWriter implements Writer.
var _ Writer = (*PostgresWriter)(nil)
