// Package sqlite implements registry.Store on an embedded SQLite database,
// for single-node deployments that do not run CouchDB or PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/verida/notification-server/internal/domain/registry"
	apperrors "github.com/verida/notification-server/pkg/errors"
)

// Store implements registry.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database file at path.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, apperrors.Wrap(err, "failed to create sqlite directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open sqlite database")
	}

	// One connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to enable WAL")
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL`); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "failed to set synchronous mode")
	}

	return &Store{db: db}, nil
}

// Create runs the schema migration. It is idempotent.
func (s *Store) Create(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS device_records (
		key TEXT PRIMARY KEY,
		context TEXT NOT NULL,
		device_tokens TEXT NOT NULL,
		revision TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return apperrors.Wrap(err, "failed to migrate device_records")
}

// Get retrieves a record by key.
func (s *Store) Get(ctx context.Context, key registry.Key) (*registry.Record, error) {
	var (
		rec       = &registry.Record{Key: key}
		tokensRaw string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT context, device_tokens, revision FROM device_records WHERE key = ?`,
		key.String(),
	).Scan(&rec.Context, &tokensRaw, &rec.Revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get device record")
	}

	var tokens []string
	if err := json.Unmarshal([]byte(tokensRaw), &tokens); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode device tokens")
	}
	rec.DeviceTokens = registry.Dedupe(tokens)

	return rec, nil
}

// Put creates or conditionally replaces a record.
func (s *Store) Put(ctx context.Context, r *registry.Record) (string, error) {
	tokens, err := json.Marshal(registry.Dedupe(r.DeviceTokens))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode device tokens")
	}

	rev := registry.NextRevision(r.Revision)
	now := time.Now().UTC().UnixMilli()

	var result sql.Result
	if r.IsNew() {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO device_records (key, context, device_tokens, revision, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (key) DO NOTHING
		`, r.Key.String(), r.Context, string(tokens), rev, now)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE device_records
			SET context = ?, device_tokens = ?, revision = ?, updated_at = ?
			WHERE key = ? AND revision = ?
		`, r.Context, string(tokens), rev, now, r.Key.String(), r.Revision)
	}
	if err != nil {
		return "", apperrors.Wrap(err, "failed to save device record")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", apperrors.Wrap(err, "failed to save device record")
	}
	if affected == 0 {
		return "", apperrors.ErrRevisionConflict
	}

	return rev, nil
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
