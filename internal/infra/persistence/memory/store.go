// Package memory provides the in-memory song record store. It is the only
// owner of mutable catalog state; durable backends hydrate it at startup and
// snapshot it at shutdown.
package memory

import (
	"sync"
	"sync/atomic"

	"songcatalog/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain store interface.
var _ domain.RecordStore = (*Store)(nil)

type (
	// Song aliases domain.Song for in-memory operations.
	Song = domain.Song
)

// entry holds a single record behind its own lock so play increments on
// different songs never contend with each other.
type entry struct {
	mu   sync.Mutex
	song Song
}

func (e *entry) load() Song {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.song
}

// Store is a concurrent keyed song collection with an id generator and a
// visit counter. The zero value is not usable; construct with NewStore.
type Store struct {
	mu     sync.RWMutex
	songs  map[int64]*entry
	order  []int64
	nextID atomic.Int64
	visits atomic.Int64
}

// NewStore constructs an empty store whose first issued id is 1.
func NewStore() *Store {
	s := &Store{songs: make(map[int64]*entry)}
	s.nextID.Store(1)
	return s
}

// Insert allocates the next id and publishes a new record with a zero play count.
func (s *Store) Insert(title, artist, genre string) Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID.Add(1) - 1
	song := Song{ID: id, Title: title, Artist: artist, Genre: genre}
	s.songs[id] = &entry{song: song}
	s.order = append(s.order, id)
	return song
}

// IncrementPlay bumps the play count of id and returns the updated record.
// It reports false, changing nothing, when id is unknown.
func (s *Store) IncrementPlay(id int64) (Song, bool) {
	s.mu.RLock()
	e, ok := s.songs[id]
	s.mu.RUnlock()
	if !ok {
		return Song{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.song.PlayCount++
	return e.song, true
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id int64) (Song, bool) {
	s.mu.RLock()
	e, ok := s.songs[id]
	s.mu.RUnlock()
	if !ok {
		return Song{}, false
	}
	return e.load(), true
}

// Snapshot returns copies of every record in insertion order. Only the
// entry list is taken under the store lock; each record is then copied
// under its own lock, so a single record is never torn.
func (s *Store) Snapshot() []Song {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.songs[id])
	}
	s.mu.RUnlock()

	out := make([]Song, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.load())
	}
	return out
}

// IncrementVisits atomically increments the visit counter and returns the new value.
func (s *Store) IncrementVisits() int64 {
	return s.visits.Add(1)
}

// Visits returns the current visit count.
func (s *Store) Visits() int64 {
	return s.visits.Load()
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.songs)
}

// ExportState clones the current records for external persistence.
func (s *Store) ExportState() []Song {
	return s.Snapshot()
}

// ImportState replaces the stored records with songs. Later entries win
// over earlier ones sharing an id, and the id counter resumes after the
// highest imported id. The visit counter is left untouched. Songs failing
// domain.CheckIDs are rejected and the store is not modified.
func (s *Store) ImportState(songs []Song) error {
	if err := domain.CheckIDs(songs); err != nil {
		return err
	}
	songs = domain.Dedupe(songs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.songs = make(map[int64]*entry, len(songs))
	s.order = make([]int64, 0, len(songs))
	var maxID int64
	for _, song := range songs {
		s.songs[song.ID] = &entry{song: song}
		s.order = append(s.order, song.ID)
		maxID = max(maxID, song.ID)
	}
	s.nextID.Store(maxID + 1)
	return nil
}
