// Package store persists draws keyed by draw date in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"euromillions/internal/models"
)

// ErrPersistence wraps every storage failure.
var ErrPersistence = errors.New("persistence failure")

const schema = `
CREATE TABLE IF NOT EXISTS draws (
	draw_date  DATE PRIMARY KEY,
	numbers    TEXT NOT NULL,
	stars      TEXT NOT NULL,
	jackpot    BIGINT,
	winners    TEXT,
	updated_at TIMESTAMP NOT NULL
)`

const upsertQuery = `
INSERT INTO draws (draw_date, numbers, stars, jackpot, winners, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (draw_date) DO UPDATE SET
	numbers = excluded.numbers,
	stars = excluded.stars,
	jackpot = excluded.jackpot,
	winners = excluded.winners,
	updated_at = excluded.updated_at`

const selectColumns = `SELECT draw_date, numbers, stars, jackpot, winners FROM draws`

// Store is a draw table behind database/sql.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open picks the driver from the DSN: postgres:// and postgresql:// URLs
// use Postgres, anything else is a SQLite path or file: URI.
func Open(dsn string) (*Store, error) {
	driver, source := "sqlite3", dsn
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	if postgres {
		driver = "postgres"
	} else {
		source = strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite3://"), "sqlite://")
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, driver, err)
	}
	if !postgres {
		// One connection keeps :memory: databases shared and serializes SQLite writes.
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db, postgres: postgres}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver names the backend in use.
func (s *Store) Driver() string {
	if s.postgres {
		return "postgres"
	}
	return "sqlite3"
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrPersistence, err)
	}
	return nil
}

// EnsureSchema creates the draws table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrPersistence, err)
	}
	return nil
}

// Upsert inserts d or replaces every field of the draw stored for the same date.
func (s *Store) Upsert(ctx context.Context, d models.Draw) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	numbers, err := json.Marshal(d.Numbers)
	if err != nil {
		return fmt.Errorf("%w: encode numbers: %v", ErrPersistence, err)
	}
	stars, err := json.Marshal(d.Stars)
	if err != nil {
		return fmt.Errorf("%w: encode stars: %v", ErrPersistence, err)
	}
	var jackpot sql.NullInt64
	if d.Jackpot != nil {
		jackpot = sql.NullInt64{Int64: *d.Jackpot, Valid: true}
	}
	var winners sql.NullString
	if d.Winners != nil {
		b, err := json.Marshal(d.Winners)
		if err != nil {
			return fmt.Errorf("%w: encode winners: %v", ErrPersistence, err)
		}
		winners = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.rebind(upsertQuery),
		d.DrawDate, string(numbers), string(stars), jackpot, winners, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrPersistence, d.DrawDate, err)
	}
	return nil
}

// Latest returns the most recent draw, or nil when the table is empty.
func (s *Store) Latest(ctx context.Context) (*models.Draw, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` ORDER BY draw_date DESC LIMIT 1`)
	d, err := scanDraw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest: %v", ErrPersistence, err)
	}
	return &d, nil
}

// Get returns the draw stored for an ISO date, or nil when there is none.
func (s *Store) Get(ctx context.Context, date string) (*models.Draw, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE draw_date = ?`), date)
	d, err := scanDraw(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrPersistence, date, err)
	}
	return &d, nil
}

// List returns draws newest first. A zero year or limit means no filter.
func (s *Store) List(ctx context.Context, year, limit int) ([]models.Draw, error) {
	query := selectColumns
	var args []any
	if year > 0 {
		query += ` WHERE draw_date >= ? AND draw_date < ?`
		args = append(args, fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-01-01", year+1))
	}
	query += ` ORDER BY draw_date DESC`
	if limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrPersistence, err)
	}
	defer rows.Close()

	draws := make([]models.Draw, 0)
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: list: %v", ErrPersistence, err)
		}
		draws = append(draws, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrPersistence, err)
	}
	return draws, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraw(sc scanner) (models.Draw, error) {
	var (
		date           any
		numbers, stars string
		jackpot        sql.NullInt64
		winners        sql.NullString
	)
	if err := sc.Scan(&date, &numbers, &stars, &jackpot, &winners); err != nil {
		return models.Draw{}, err
	}
	d := models.Draw{}
	var err error
	if d.DrawDate, err = dateString(date); err != nil {
		return models.Draw{}, err
	}
	if err := json.Unmarshal([]byte(numbers), &d.Numbers); err != nil {
		return models.Draw{}, fmt.Errorf("decode numbers of %s: %w", d.DrawDate, err)
	}
	if err := json.Unmarshal([]byte(stars), &d.Stars); err != nil {
		return models.Draw{}, fmt.Errorf("decode stars of %s: %w", d.DrawDate, err)
	}
	if jackpot.Valid {
		v := jackpot.Int64
		d.Jackpot = &v
	}
	if winners.Valid && winners.String != "" {
		if err := json.Unmarshal([]byte(winners.String), &d.Winners); err != nil {
			return models.Draw{}, fmt.Errorf("decode winners of %s: %w", d.DrawDate, err)
		}
	}
	return d, nil
}

// dateString reads a DATE column, which drivers hand back as time.Time or text.
func dateString(v any) (string, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.Format(models.DateLayout), nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return "", fmt.Errorf("unexpected draw_date type %T", v)
	}
	if len(s) < len(models.DateLayout) {
		return "", fmt.Errorf("malformed draw_date %q", s)
	}
	return s[:len(models.DateLayout)], nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
