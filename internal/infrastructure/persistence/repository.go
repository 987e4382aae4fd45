package persistence

import (
	"context"
	"fmt"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/internal/infrastructure/persistence/couchdb"
	"github.com/verida/notification-server/internal/infrastructure/persistence/memory"
	"github.com/verida/notification-server/internal/infrastructure/persistence/postgres"
	"github.com/verida/notification-server/internal/infrastructure/persistence/sqlite"
	"github.com/verida/notification-server/pkg/logger"
)

// NewStore builds the registry.Store selected by cfg.Store.Backend.
// The caller owns the result and must Close it.
func NewStore(ctx context.Context, cfg *config.Config, log logger.Logger) (registry.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendCouchDB:
		log.Info("Using CouchDB device store",
			logger.Component("persistence"),
			logger.String("host", cfg.CouchDB.Host),
			logger.String("database", cfg.CouchDB.Database),
		)
		return couchdb.NewStore(&cfg.CouchDB, log), nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Connected to PostgreSQL",
			logger.Component("persistence"),
			logger.String("host", cfg.Database.Host),
			logger.Int("port", cfg.Database.Port),
		)
		return postgres.NewRecordStore(db), nil

	case config.BackendSQLite:
		store, err := sqlite.NewStore(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("Opened SQLite device store",
			logger.Component("persistence"),
			logger.String("path", cfg.SQLite.Path),
		)
		return store, nil

	case config.BackendMemory:
		log.Warn("Using in-memory device store; registrations are lost on restart",
			logger.Component("persistence"),
		)
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
