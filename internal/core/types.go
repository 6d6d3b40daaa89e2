package core

import "songcatalog/pkg/domain"

type (
	// Song aliases the domain record.
	Song = domain.Song
	// Constraints aliases the search predicate map.
	Constraints = domain.Constraints
	// ErrNotFound aliases the missing-record error.
	ErrNotFound = domain.ErrNotFound
)
