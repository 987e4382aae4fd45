// Package couchdb implements registry.Store on CouchDB. Documents keep the
// layout the device lookup database has always used:
//
//	{"_id": "<registry key>", "_rev": "...", "context": "...", "deviceIds": [...]}
package couchdb

import (
	"context"
	"crypto/tls"
	"net/http"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/registry"
	apperrors "github.com/verida/notification-server/pkg/errors"
	"github.com/verida/notification-server/pkg/lazy"
	"github.com/verida/notification-server/pkg/logger"
)

type document struct {
	ID        string   `json:"_id"`
	Rev       string   `json:"_rev,omitempty"`
	Context   string   `json:"context"`
	DeviceIDs []string `json:"deviceIds"`
}

// Store implements registry.Store using CouchDB. The client connection is
// built on first use and shared for the life of the process.
type Store struct {
	dbName string
	client *lazy.Value[*kivik.Client]
	log    logger.Logger
}

// NewStore creates a store for the configured database. No network I/O
// happens until the first call.
func NewStore(cfg *config.CouchDBConfig, log logger.Logger) *Store {
	dsn := cfg.DSN()
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !cfg.RejectUnauthorized, //nolint:gosec // DB_REJECT_UNAUTHORIZED_SSL=false
			},
		},
	}

	return &Store{
		dbName: cfg.Database,
		log:    log.With(logger.Component("couchdb")),
		client: lazy.New(func(context.Context) (*kivik.Client, error) {
			client, err := kivik.New("couch", dsn, couchdb.OptionHTTPClient(httpClient))
			if err != nil {
				return nil, apperrors.Wrap(err, "failed to create couchdb client")
			}
			return client, nil
		}),
	}
}

func (s *Store) db(ctx context.Context) (*kivik.DB, error) {
	client, err := s.client.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client.DB(s.dbName), nil
}

// Create creates the database. An existing database is expected and logged.
func (s *Store) Create(ctx context.Context) error {
	client, err := s.client.Get(ctx)
	if err != nil {
		return err
	}

	err = client.CreateDB(ctx, s.dbName)
	switch {
	case err == nil:
		s.log.Info("Created database", logger.String("database", s.dbName))
		return nil
	case kivik.HTTPStatus(err) == http.StatusPreconditionFailed:
		s.log.Info("Database already exists", logger.String("database", s.dbName))
		return nil
	default:
		return apperrors.Wrap(err, "failed to create database "+s.dbName)
	}
}

// Get retrieves a record by key.
func (s *Store) Get(ctx context.Context, key registry.Key) (*registry.Record, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := db.Get(ctx, key.String()).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get device record")
	}

	return &registry.Record{
		Key:          key,
		Context:      doc.Context,
		DeviceTokens: registry.Dedupe(doc.DeviceIDs),
		Revision:     doc.Rev,
	}, nil
}

// Put creates or conditionally replaces a record. CouchDB itself enforces
// the revision check and rejects stale writes with 409.
func (s *Store) Put(ctx context.Context, r *registry.Record) (string, error) {
	db, err := s.db(ctx)
	if err != nil {
		return "", err
	}

	doc := document{
		ID:        r.Key.String(),
		Rev:       r.Revision,
		Context:   r.Context,
		DeviceIDs: registry.Dedupe(r.DeviceTokens),
	}

	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return "", apperrors.ErrRevisionConflict
		}
		return "", apperrors.Wrap(err, "unable to save DID / device lookup")
	}
	return rev, nil
}

// Health pings the server.
func (s *Store) Health(ctx context.Context) error {
	client, err := s.client.Get(ctx)
	if err != nil {
		return err
	}
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Wrap(apperrors.ErrStore, "couchdb not ready")
	}
	return nil
}

// Close releases the client if it was ever built.
func (s *Store) Close() error {
	if client, ok := s.client.Peek(); ok {
		return client.Close()
	}
	return nil
}
