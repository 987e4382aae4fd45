package registry

import "context"

// Store defines the interface for device record persistence.
//
// Implementations use optimistic concurrency: every successful Put returns
// a fresh revision, and a Put carrying a stale revision fails with
// errors.ErrRevisionConflict.
type Store interface {
	// Get retrieves a record by key. Returns errors.ErrNotFound when absent.
	Get(ctx context.Context, key Key) (*Record, error)

	// Put creates the record when r.Revision is empty, otherwise replaces the
	// stored record if its revision still equals r.Revision. Returns the new
	// revision.
	Put(ctx context.Context, r *Record) (string, error)

	// Create provisions the backing database. An existing database is not an error.
	Create(ctx context.Context) error

	// Health checks connectivity.
	Health(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
