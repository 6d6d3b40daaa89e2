// Package domain defines the song record, query constraints, and the store
// and persistence contracts shared across songcatalog.
package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// Song is a single catalog record. ID is assigned once by the store and
// never changes; PlayCount is the only field mutated after insertion.
type Song struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Genre     string `json:"genre"`
	PlayCount int64  `json:"play_count"`
}

// Field names recognised by search constraints.
const (
	FieldTitle  = "title"
	FieldArtist = "artist"
	FieldGenre  = "genre"
)

// Field returns the value of the named field and whether the name is recognised.
func (s Song) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return s.Title, true
	case FieldArtist:
		return s.Artist, true
	case FieldGenre:
		return s.Genre, true
	default:
		return "", false
	}
}

// Constraints maps a field name to the substring it must contain.
type Constraints map[string]string

// ErrNotFound is returned when an operation references an id with no record.
type ErrNotFound struct {
	ID int64
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("song %d not found", e.ID)
}

// Dedupe collapses songs sharing an id, keeping the values of the last
// occurrence, and returns the survivors sorted by id.
func Dedupe(songs []Song) []Song {
	byID := make(map[int64]Song, len(songs))
	for _, song := range songs {
		byID[song.ID] = song
	}
	out := make([]Song, 0, len(byID))
	for _, song := range byID {
		out = append(out, song)
	}
	slices.SortFunc(out, func(a, b Song) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// CheckIDs reports ErrCorrupt when a persisted record carries an id the store
// could never have issued: anything below 1, or math.MaxInt64, after which
// the id counter has nowhere to go.
func CheckIDs(songs []Song) error {
	for _, song := range songs {
		if song.ID < 1 || song.ID == math.MaxInt64 {
			return fmt.Errorf("%w: invalid song id %d", ErrCorrupt, song.ID)
		}
	}
	return nil
}
