// Package persistence selects the durable backend that hydrates the catalog at
// startup and receives its snapshot at shutdown. Callers outside this package
// depend on domain.Persister and never import the infra backends directly.
package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"songcatalog/internal/blob"
	"songcatalog/internal/infra/persistence/file"
	"songcatalog/internal/infra/persistence/postgres"
	"songcatalog/internal/infra/persistence/sqlite"
	"songcatalog/pkg/domain"
)

// Driver identifies a concrete persistence backend.
type Driver string

const (
	DriverFile     Driver = "file"     // JSON array in a local file (default)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
	DriverBlob     Driver = "blob"     // JSON object in a blob store (fs, s3, memory)
	DriverMemory   Driver = "memory"   // process-local, nothing survives a restart
)

// DefaultBlobKey names the object the blob driver reads and writes.
const DefaultBlobKey = "catalog/songs.json"

// Config selects and parameterises a persistence backend.
type Config struct {
	Driver      Driver
	FilePath    string
	SQLitePath  string
	PostgresDSN string
	Blob        blob.Config
	BlobKey     string
}

// Open constructs the persister named by cfg.Driver (file when empty).
func Open(ctx context.Context, cfg Config) (domain.Persister, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFile
	}
	switch driver {
	case DriverFile:
		return file.NewStore(cfg.FilePath), nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case DriverBlob:
		store, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return NewBlob(store, cfg.BlobKey), nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// Blob persists the catalog as a single JSON object in a blob store.
type Blob struct {
	store blob.Store
	key   string
}

// NewBlob returns a persister writing the catalog to key within store.
func NewBlob(store blob.Store, key string) *Blob {
	if key == "" {
		key = DefaultBlobKey
	}
	return &Blob{store: store, key: key}
}

// Key returns the object key the catalog is stored under.
func (b *Blob) Key() string { return b.key }

// Load reads the catalog object. A missing object yields an empty catalog.
func (b *Blob) Load(ctx context.Context) ([]domain.Song, error) {
	_, rc, err := b.store.Get(ctx, b.key)
	if errors.Is(err, blob.ErrNotExist) {
		return []domain.Song{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b.key, err)
	}
	defer func() { _ = rc.Close() }()
	songs, err := file.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.key, err)
	}
	return songs, nil
}

// Save overwrites the catalog object with songs.
func (b *Blob) Save(ctx context.Context, songs []domain.Song) error {
	var buf bytes.Buffer
	if err := file.Encode(&buf, songs); err != nil {
		return err
	}
	if _, err := b.store.Put(ctx, b.key, bytes.NewReader(buf.Bytes()), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("put %s: %w", b.key, err)
	}
	return nil
}

// Close is a no-op; blob clients hold no exclusive resources.
func (b *Blob) Close() error { return nil }

// Memory keeps the last saved snapshot in process memory.
type Memory struct {
	mu    sync.Mutex
	songs []domain.Song
	saves int
}

// NewMemory returns an empty in-memory persister.
func NewMemory() *Memory { return &Memory{} }

// Load returns a copy of the last saved snapshot.
func (m *Memory) Load(context.Context) ([]domain.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Song{}, m.songs...), nil
}

// Save replaces the retained snapshot with a copy of songs.
func (m *Memory) Save(_ context.Context, songs []domain.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs = append([]domain.Song{}, songs...)
	m.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
