package domain

import (
	"context"
	"errors"
)

// RecordStore is the concurrent song collection used by the service layer.
// Implementations must be safe for use by many goroutines.
type RecordStore interface {
	Insert(title, artist, genre string) Song
	IncrementPlay(id int64) (Song, bool)
	Get(id int64) (Song, bool)
	Snapshot() []Song
	IncrementVisits() int64
	Visits() int64
	Len() int
	ImportState(songs []Song) error
	ExportState() []Song
}

// Persister loads the durable collection at startup and writes it back at
// shutdown. Load on an absent source returns an empty slice and no error.
type Persister interface {
	Load(ctx context.Context) ([]Song, error)
	Save(ctx context.Context, songs []Song) error
	Close() error
}

// ErrCorrupt marks a durable source that exists but cannot be decoded.
var ErrCorrupt = errors.New("persisted catalog is corrupt")
