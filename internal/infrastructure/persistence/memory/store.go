// Package memory provides an in-process registry.Store. It backs tests and
// single-instance development runs; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/verida/notification-server/internal/domain/registry"
	apperrors "github.com/verida/notification-server/pkg/errors"
)

type entry struct {
	context  string
	tokens   []string
	revision string
}

// Store implements registry.Store in memory.
type Store struct {
	mu      sync.RWMutex
	records map[registry.Key]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[registry.Key]entry)}
}

// Get retrieves a record by key.
func (s *Store) Get(_ context.Context, key registry.Key) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &registry.Record{
		Key:          key,
		Context:      e.context,
		DeviceTokens: append([]string{}, e.tokens...),
		Revision:     e.revision,
	}, nil
}

// Put creates or conditionally replaces a record.
func (s *Store) Put(_ context.Context, r *registry.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[r.Key]
	switch {
	case r.IsNew() && exists:
		return "", apperrors.ErrRevisionConflict
	case !r.IsNew() && (!exists || current.revision != r.Revision):
		return "", apperrors.ErrRevisionConflict
	}

	rev := registry.NextRevision(current.revision)
	s.records[r.Key] = entry{
		context:  r.Context,
		tokens:   registry.Dedupe(r.DeviceTokens),
		revision: rev,
	}
	return rev, nil
}

// Create is a no-op; the map always exists.
func (s *Store) Create(context.Context) error { return nil }

// Health always succeeds.
func (s *Store) Health(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Len returns the number of records, including empty ones.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
