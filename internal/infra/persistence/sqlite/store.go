// Package sqlite persists the catalog to a songs table in an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"

	"songcatalog/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.Persister = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "songcatalog.db"

const createSongsTable = `CREATE TABLE IF NOT EXISTS songs (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	genre TEXT NOT NULL,
	play_count INTEGER NOT NULL DEFAULT 0
)`

// Store snapshots the catalog into SQLite. The database file is opened
// lazily so a missing or damaged file never blocks construction.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore constructs a SQLite-backed persister for path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Load reads every row of the songs table ordered by id. A database file
// that does not exist yet yields an empty catalog without creating it.
func (s *Store) Load(ctx context.Context) ([]domain.Song, error) {
	if _, err := os.Stat(s.path); errors.Is(err, iofs.ErrNotExist) {
		return []domain.Song{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, createSongsTable); err != nil {
		return nil, fmt.Errorf("%w: create songs table: %v", domain.ErrCorrupt, err)
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

// Save replaces the table contents with songs in a single transaction.
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
	if _, err := tx.ExecContext(ctx, `DELETE FROM songs`); err != nil {
		return fmt.Errorf("clear songs: %w", err)
	}
	for _, song := range songs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO songs(id,title,artist,genre,play_count) VALUES(?,?,?,?,?) ON CONFLICT(id) DO UPDATE SET title=excluded.title, artist=excluded.artist, genre=excluded.genre, play_count=excluded.play_count`,
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

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
