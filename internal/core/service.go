// Package core exposes the catalog service: the boundary operations callers
// use to add, play and search songs and to count visits, plus the lifecycle
// that hydrates the record store from a persister and snapshots it back.
package core

import (
	"context"
	"errors"
	"fmt"

	"songcatalog/internal/infra/persistence/memory"
	"songcatalog/internal/query"
	"songcatalog/pkg/domain"
)

// Operation names reported to loggers, metrics, tracers and audit recorders.
const (
	OpInsert = "insert_song"
	OpPlay   = "play_song"
	OpGet    = "get_song"
	OpSearch = "search_songs"
	OpVisit  = "visit"
	OpLoad   = "load_catalog"
	OpSave   = "save_catalog"
)

// Service coordinates the record store, the query engine and the persister.
type Service struct {
	store     domain.RecordStore
	persister domain.Persister

	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	searchOpts []query.Option
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer that spans each operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs a recorder for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithSearchOptions sets the query options applied to every Search.
func WithSearchOptions(opts ...query.Option) ServiceOption {
	return func(s *Service) {
		s.searchOpts = append([]query.Option(nil), opts...)
	}
}

// NewService constructs a service over store; a nil store gets a fresh
// memory.Store. persister may be nil, in which case Open and Flush do nothing.
func NewService(store domain.RecordStore, persister domain.Persister, opts ...ServiceOption) *Service {
	if store == nil {
		store = memory.NewStore()
	}
	svc := &Service{
		store:     store,
		persister: persister,
		logger:    noopLogger{},
		clock:     systemClock{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		audit:     noopAuditRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// NewInMemoryService creates a service with a fresh store and no persister.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), nil, opts...)
}

// Store returns the underlying record store.
func (s *Service) Store() domain.RecordStore { return s.store }

// Len reports the number of stored songs.
func (s *Service) Len() int { return s.store.Len() }

// Visits reports the current visit count.
func (s *Service) Visits() int64 { return s.store.Visits() }

// run wraps fn with tracing, metrics, logging and, for mutating operations,
// an audit entry.
func (s *Service) run(ctx context.Context, op string, audited bool, fn func(context.Context) (int64, error)) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	id, err := fn(ctx)
	span.End(err)
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)

	if audited {
		entry := AuditEntry{Operation: op, Status: AuditStatusSuccess, SongID: id, Timestamp: start, Duration: duration}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		s.audit.Record(ctx, entry)
	}

	if err != nil {
		s.logger.Warn("service operation failed", "operation", op, "song_id", id, "error", err)
		return err
	}
	s.logger.Debug("service operation completed", "operation", op, "song_id", id, "duration", duration)
	return nil
}

// Insert adds a song with a freshly assigned id and a zero play count.
func (s *Service) Insert(ctx context.Context, title, artist, genre string) (Song, error) {
	var created Song
	err := s.run(ctx, OpInsert, true, func(context.Context) (int64, error) {
		created = s.store.Insert(title, artist, genre)
		return created.ID, nil
	})
	return created, err
}

// Play increments the play count of id. It returns ErrNotFound when no song
// has that id.
func (s *Service) Play(ctx context.Context, id int64) (Song, error) {
	var updated Song
	err := s.run(ctx, OpPlay, true, func(context.Context) (int64, error) {
		song, ok := s.store.IncrementPlay(id)
		if !ok {
			return id, ErrNotFound{ID: id}
		}
		updated = song
		return id, nil
	})
	return updated, err
}

// Get returns the song with id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (Song, error) {
	var found Song
	err := s.run(ctx, OpGet, false, func(context.Context) (int64, error) {
		song, ok := s.store.Get(id)
		if !ok {
			return id, ErrNotFound{ID: id}
		}
		found = song
		return id, nil
	})
	return found, err
}

// Search returns the songs matching every constraint, in store order.
// Unknown constraint fields match nothing.
func (s *Service) Search(ctx context.Context, constraints Constraints) ([]Song, error) {
	var matched []Song
	err := s.run(ctx, OpSearch, false, func(context.Context) (int64, error) {
		if unknown := query.UnknownFields(constraints); len(unknown) > 0 {
			s.logger.Debug("search names unknown fields", "fields", unknown)
		}
		matched = query.Filter(s.store.Snapshot(), constraints, s.searchOpts...)
		return 0, nil
	})
	return matched, err
}

// Visit increments the visit counter and returns its new value.
func (s *Service) Visit(ctx context.Context) (int64, error) {
	var visits int64
	err := s.run(ctx, OpVisit, false, func(context.Context) (int64, error) {
		visits = s.store.IncrementVisits()
		return 0, nil
	})
	return visits, err
}

// Open hydrates the store from the persister. A load failure, including
// records the store rejects, is logged and the service starts with an empty
// catalog; it is never returned.
func (s *Service) Open(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	err := s.run(ctx, OpLoad, false, func(ctx context.Context) (int64, error) {
		songs, err := s.persister.Load(ctx)
		if err != nil {
			return 0, err
		}
		return 0, s.store.ImportState(songs)
	})
	if err != nil {
		s.logger.Error("persistence load failed", "error", err)
		_ = s.store.ImportState(nil) // an empty import cannot fail
		return nil
	}
	s.logger.Info("catalog hydrated", "songs", s.store.Len())
	return nil
}

// Flush writes a snapshot of the store to the persister.
func (s *Service) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	return s.run(ctx, OpSave, false, func(ctx context.Context) (int64, error) {
		songs := s.store.ExportState()
		if err := s.persister.Save(ctx, songs); err != nil {
			return 0, fmt.Errorf("save catalog: %w", err)
		}
		return 0, nil
	})
}

// Close flushes the store and releases the persister. A save failure is
// logged at error level and returned alongside any close error.
func (s *Service) Close(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	flushErr := s.Flush(ctx)
	if flushErr != nil {
		s.logger.Error("persistence save failed", "error", flushErr)
	} else {
		s.logger.Info("catalog saved", "songs", s.store.Len())
	}
	closeErr := s.persister.Close()
	return errors.Join(flushErr, closeErr)
}
