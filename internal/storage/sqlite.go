package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/coursegraph/internal/models"
)

// SQLiteStorage implements RatingStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS professor_cache (
		name TEXT PRIMARY KEY,
		avg_rating REAL,
		avg_difficulty REAL,
		source_id TEXT,
		status_code INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_professor_cache_last_updated ON professor_cache(last_updated);
	`
	_, err := db.Exec(schema)
	return err
}

// The COALESCEs keep a previously known rating when a later lookup comes back empty.
const upsertRating = `
	INSERT INTO professor_cache (name, avg_rating, avg_difficulty, source_id, status_code, last_updated)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		avg_rating = COALESCE(excluded.avg_rating, professor_cache.avg_rating),
		avg_difficulty = COALESCE(excluded.avg_difficulty, professor_cache.avg_difficulty),
		source_id = COALESCE(excluded.source_id, professor_cache.source_id),
		status_code = excluded.status_code,
		last_updated = excluded.last_updated`

func upsertArgs(r *CachedRating) []any {
	var avg, diff, source any
	if r.Rating != nil {
		avg, diff, source = r.Rating.AvgRating, r.Rating.AvgDifficulty, r.Rating.SourceID
	}
	updated := r.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	return []any{r.Name, avg, diff, source, r.StatusCode, updated.UTC()}
}

// UpsertRating inserts or updates one cache row.
func (s *SQLiteStorage) UpsertRating(ctx context.Context, r *CachedRating) error {
	_, err := s.db.ExecContext(ctx, upsertRating, upsertArgs(r)...)
	return err
}

// BatchUpsertRatings upserts multiple rows in a transaction.
func (s *SQLiteStorage) BatchUpsertRatings(ctx context.Context, rs []*CachedRating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRating)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, upsertArgs(r)...); err != nil {
			return fmt.Errorf("failed to upsert rating for %q: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

// GetRating returns the cache row for name.
func (s *SQLiteStorage) GetRating(ctx context.Context, name string) (*CachedRating, error) {
	var (
		r      CachedRating
		avg    sql.NullFloat64
		diff   sql.NullFloat64
		source sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, avg_rating, avg_difficulty, source_id, status_code, last_updated
		 FROM professor_cache WHERE name = ?`, name,
	).Scan(&r.Name, &avg, &diff, &source, &r.StatusCode, &r.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rating not found: %s", name)
	}
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		r.Rating = &models.InstructorRating{
			AvgRating:     avg.Float64,
			AvgDifficulty: diff.Float64,
			SourceID:      source.String,
		}
	}
	return &r, nil
}

// StaleNames returns the names needing a lookup.
func (s *SQLiteStorage) StaleNames(ctx context.Context, names []string, maxAge time.Duration, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, last_updated FROM professor_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	updated := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		updated[name] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cutoff := now.Add(-maxAge)
	var stale []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		if at, ok := updated[name]; !ok || at.Before(cutoff) {
			stale = append(stale, name)
		}
	}
	return stale, nil
}

// Ratings returns every row with a known rating keyed by name.
func (s *SQLiteStorage) Ratings(ctx context.Context) (map[string]models.InstructorRating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, avg_rating, avg_difficulty, source_id
		 FROM professor_cache WHERE avg_rating IS NOT NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.InstructorRating)
	for rows.Next() {
		var (
			name   string
			avg    float64
			diff   sql.NullFloat64
			source sql.NullString
		)
		if err := rows.Scan(&name, &avg, &diff, &source); err != nil {
			return nil, err
		}
		out[name] = models.InstructorRating{AvgRating: avg, AvgDifficulty: diff.Float64, SourceID: source.String}
	}
	return out, rows.Err()
}

// CountRatings returns the number of cache rows, rated or not.
func (s *SQLiteStorage) CountRatings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM professor_cache`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
