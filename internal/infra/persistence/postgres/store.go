// Package postgres persists the catalog to a songs table in Postgres via the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"songcatalog/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.Persister = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/songcatalog?sslmode=disable"
)

const createSongsTable = `CREATE TABLE IF NOT EXISTS songs (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	genre TEXT NOT NULL,
	play_count BIGINT NOT NULL DEFAULT 0
)`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store snapshots the catalog into Postgres.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens and pings a Postgres connection using dsn (falls back to DefaultDSN).
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Load ensures the songs table exists and returns its rows ordered by id.
func (s *Store) Load(ctx context.Context) ([]domain.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, createSongsTable); err != nil {
		return nil, fmt.Errorf("create songs table: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, artist, genre, play_count FROM songs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select songs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	songs := []domain.Song{}
	for rows.Next() {
		var song domain.Song
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Genre, &song.PlayCount); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrCorrupt, err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate songs: %w", err)
	}
	if err := domain.CheckIDs(songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// Save truncates the songs table and rewrites it from songs in one transaction.
func (s *Store) Save(ctx context.Context, songs []domain.Song) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, createSongsTable); err != nil {
		return fmt.Errorf("create songs table: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE songs`); err != nil {
		return fmt.Errorf("truncate songs: %w", err)
	}
	for _, song := range songs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO songs (id, title, artist, genre, play_count) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, artist=EXCLUDED.artist, genre=EXCLUDED.genre, play_count=EXCLUDED.play_count`,
			song.ID, song.Title, song.Artist, song.Genre, song.PlayCount,
		); err != nil {
			return fmt.Errorf("insert song %d: %w", song.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
