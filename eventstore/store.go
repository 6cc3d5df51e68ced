package eventstore

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrConcurrencyConflict is returned when Append's expected version does
// not match the stream's current version.
var ErrConcurrencyConflict = errors.New("eventstore: concurrency conflict")

// Store is an append-only event store with optimistic concurrency.
type Store interface {
	// Append adds events to a stream. expectedVersion is the version of
	// the last event already in the stream, -1 for a new stream.
	// Returns the version of the last appended event.
	Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error)

	// Read returns events in a stream starting at fromVersion, in order.
	Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error)

	// StreamVersion returns the version of the stream's last event,
	// -1 for a stream with no events.
	StreamVersion(ctx context.Context, stream string) (int, error)

	// Streams returns the ids of all streams with at least one event.
	Streams(ctx context.Context) ([]string, error)

	// DeleteStream removes a stream and all its events.
	DeleteStream(ctx context.Context, stream string) error

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[string][]*Event)}
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, stream string, expectedVersion int, events []*Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := len(s.streams[stream]) - 1
	if expectedVersion != current {
		return 0, ErrConcurrencyConflict
	}

	version := current
	for _, event := range events {
		version++
		e := *event
		e.Stream = stream
		e.Version = version
		s.streams[stream] = append(s.streams[stream], &e)
		event.Version = version
	}
	return version, nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, stream string, fromVersion int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.streams[stream]
	var out []*Event
	for _, e := range all {
		if e.Version >= fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

// StreamVersion implements Store.
func (s *MemoryStore) StreamVersion(ctx context.Context, stream string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams[stream]) - 1, nil
}

// Streams implements Store.
func (s *MemoryStore) Streams(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.streams))
	for id := range s.streams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteStream implements Store.
func (s *MemoryStore) DeleteStream(ctx context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, stream)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
