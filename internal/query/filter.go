// Package query filters song snapshots against field/substring constraints.
// It holds no state and takes no locks; callers pass it a snapshot.
package query

import (
	"sort"
	"strings"

	"songcatalog/pkg/domain"
)

type options struct {
	ignoreCase bool
}

// Option adjusts how constraints are matched.
type Option func(*options)

// IgnoreCase lower-cases both the field value and the constraint before
// testing containment. Matching is case-sensitive without it.
func IgnoreCase() Option {
	return func(o *options) { o.ignoreCase = true }
}

// CaseSensitive selects the default case-sensitive matching explicitly.
func CaseSensitive() Option {
	return func(o *options) { o.ignoreCase = false }
}

// Filter returns the records matching every constraint, in input order.
// A constraint on an unrecognised field never matches, so any record
// checked against it is excluded. Empty constraints match everything.
func Filter(records []domain.Song, constraints domain.Constraints, opts ...Option) []domain.Song {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	out := make([]domain.Song, 0, len(records))
	for _, rec := range records {
		if matches(rec, constraints, o) {
			out = append(out, rec)
		}
	}
	return out
}

// Match reports whether a single record satisfies all constraints.
func Match(record domain.Song, constraints domain.Constraints, opts ...Option) bool {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return matches(record, constraints, o)
}

func matches(rec domain.Song, constraints domain.Constraints, o options) bool {
	for field, want := range constraints {
		value, ok := rec.Field(field)
		if !ok {
			return false
		}
		if o.ignoreCase {
			value, want = strings.ToLower(value), strings.ToLower(want)
		}
		if !strings.Contains(value, want) {
			return false
		}
	}
	return true
}

// UnknownFields lists constraint keys that no record can satisfy, sorted.
func UnknownFields(constraints domain.Constraints) []string {
	var unknown []string
	for field := range constraints {
		if _, ok := (domain.Song{}).Field(field); !ok {
			unknown = append(unknown, field)
		}
	}
	sort.Strings(unknown)
	return unknown
}
