package postgres

import (
	"context"
	"time"

	"github.com/verida/notification-server/internal/domain/registry"
	apperrors "github.com/verida/notification-server/pkg/errors"
)

// RecordStore implements registry.Store using PostgreSQL.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new PostgreSQL device record store.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Create runs the schema migration. It is idempotent.
func (r *RecordStore) Create(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS device_records (
			key TEXT PRIMARY KEY,
			context TEXT NOT NULL,
			device_tokens TEXT[] NOT NULL DEFAULT '{}',
			revision TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`

	if _, err := r.db.Pool.Exec(ctx, query); err != nil {
		return apperrors.Wrap(err, "failed to migrate device_records")
	}
	return nil
}

// Get retrieves a record by key.
func (r *RecordStore) Get(ctx context.Context, key registry.Key) (*registry.Record, error) {
	query := `
		SELECT context, device_tokens, revision
		FROM device_records
		WHERE key = $1
	`

	rec := &registry.Record{Key: key}
	var tokens []string

	err := r.db.Pool.QueryRow(ctx, query, key.String()).Scan(&rec.Context, &tokens, &rec.Revision)
	if err != nil {
		return nil, translateError(err, "get device record")
	}

	rec.DeviceTokens = registry.Dedupe(tokens)
	return rec, nil
}

// Put creates or conditionally replaces a record.
func (r *RecordStore) Put(ctx context.Context, rec *registry.Record) (string, error) {
	rev := registry.NextRevision(rec.Revision)
	tokens := registry.Dedupe(rec.DeviceTokens)
	now := time.Now().UTC()

	if rec.IsNew() {
		query := `
			INSERT INTO device_records (key, context, device_tokens, revision, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := r.db.Pool.Exec(ctx, query, rec.Key.String(), rec.Context, tokens, rev, now)
		if err != nil {
			return "", translateError(err, "create device record")
		}
		return rev, nil
	}

	query := `
		UPDATE device_records
		SET context = $2, device_tokens = $3, revision = $4, updated_at = $5
		WHERE key = $1 AND revision = $6
	`

	result, err := r.db.Pool.Exec(ctx, query, rec.Key.String(), rec.Context, tokens, rev, now, rec.Revision)
	if err != nil {
		return "", translateError(err, "update device record")
	}

	if result.RowsAffected() == 0 {
		return "", apperrors.ErrRevisionConflict
	}

	return rev, nil
}

// Health checks database connectivity.
func (r *RecordStore) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Close closes the underlying pool.
func (r *RecordStore) Close() error {
	r.db.Close()
	return nil
}
