// Package file persists the catalog as a JSON array in a single local file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"songcatalog/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Persister = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "songs.json"

// Store reads and writes the durable catalog file.
type Store struct {
	path string
}

// NewStore returns a file persister for path. Nothing is touched on disk
// until Load or Save.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the configured file path.
func (s *Store) Path() string { return s.path }

// Load decodes the catalog file. A missing file yields an empty catalog.
func (s *Store) Load(_ context.Context) ([]domain.Song, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, iofs.ErrNotExist) {
		return []domain.Song{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	songs, err := Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return songs, nil
}

// Save replaces the catalog file with songs. The payload is written to a
// temp file in the same directory and renamed into place.
func (s *Store) Save(_ context.Context, songs []domain.Song) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".songs-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := Encode(tmp, songs); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *Store) Close() error { return nil }

// Encode writes songs as an indented JSON array. A nil slice encodes as [].
func Encode(w io.Writer, songs []domain.Song) error {
	if songs == nil {
		songs = []domain.Song{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(songs); err != nil {
		return fmt.Errorf("encode songs: %w", err)
	}
	return nil
}

// Decode reads a JSON array of songs. Any decode failure, including
// trailing garbage or an id the store could not have issued, is reported
// as domain.ErrCorrupt.
func Decode(r io.Reader) ([]domain.Song, error) {
	dec := json.NewDecoder(r)
	var songs []domain.Song
	if err := dec.Decode(&songs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorrupt, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after catalog", domain.ErrCorrupt)
	}
	if err := domain.CheckIDs(songs); err != nil {
		return nil, err
	}
	if songs == nil {
		songs = []domain.Song{}
	}
	return songs, nil
}
