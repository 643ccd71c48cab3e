package facts

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

// PostgresStore persists daily view-count observations and resolves facts by
// interpolating between the bracketing records.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the history database and ensures the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// observationRow is the database shape of an Observation.
type observationRow struct {
	Image      string    `db:"image_name"`
	ObservedOn time.Time `db:"observed_on"`
	ViewCount  int64     `db:"view_count"`
	Keyword    string    `db:"keyword"`
}

func (r observationRow) toObservation() Observation {
	return Observation{
		Image:     r.Image,
		Date:      calendar.DateOf(r.ObservedOn),
		ViewCount: r.ViewCount,
		Keyword:   r.Keyword,
	}
}

// RecordObservation upserts one history point for an image.
func (s *PostgresStore) RecordObservation(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photo_observations (image_name, observed_on, view_count, keyword)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (image_name, observed_on)
		DO UPDATE SET view_count = EXCLUDED.view_count, keyword = EXCLUDED.keyword
	`, obs.Image, obs.Date.Time(), obs.ViewCount, obs.Keyword)
	if err != nil {
		return fmt.Errorf("record observation %s@%s: %w", obs.Image, obs.Date, err)
	}
	return nil
}

// FactsFor resolves the day's facts from the bracketing observations.
func (s *PostgresStore) FactsFor(ctx context.Context, image string, date calendar.Date) (Daily, error) {
	earlier, err := s.bracket(ctx, image, date, true)
	if err != nil {
		return Daily{}, err
	}
	later, err := s.bracket(ctx, image, date, false)
	if err != nil {
		return Daily{}, err
	}

	daily, err := resolve(earlier, later, date)
	if err != nil {
		return Daily{}, fmt.Errorf("%w: %s", err, image)
	}
	return daily, nil
}

// bracket fetches the nearest observation at-or-before (earlier) or
// at-or-after (later) the date. A missing bracket returns nil.
func (s *PostgresStore) bracket(ctx context.Context, image string, date calendar.Date, earlier bool) (*Observation, error) {
	query := `
		SELECT image_name, observed_on, view_count, keyword
		FROM photo_observations
		WHERE image_name = $1 AND observed_on >= $2
		ORDER BY observed_on ASC
		LIMIT 1
	`
	if earlier {
		query = `
			SELECT image_name, observed_on, view_count, keyword
			FROM photo_observations
			WHERE image_name = $1 AND observed_on <= $2
			ORDER BY observed_on DESC
			LIMIT 1
		`
	}

	var row observationRow
	err := s.db.GetContext(ctx, &row, query, image, date.Time())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", image, err)
	}

	obs := row.toObservation()
	return &obs, nil
}

// History returns all observations for an image in chronological order.
func (s *PostgresStore) History(ctx context.Context, image string) ([]Observation, error) {
	var rows []observationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT image_name, observed_on, view_count, keyword
		FROM photo_observations
		WHERE image_name = $1
		ORDER BY observed_on ASC
	`, image)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", image, err)
	}

	out := make([]Observation, len(rows))
	for i, r := range rows {
		out[i] = r.toObservation()
	}
	return out, nil
}

// Close releases the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Verify PostgresStore implements Provider.
var _ Provider = (*PostgresStore)(nil)
