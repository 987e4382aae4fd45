package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/infrastructure/persistence/couchdb"
	"github.com/verida/notification-server/internal/infrastructure/persistence/memory"
	"github.com/verida/notification-server/internal/infrastructure/persistence/sqlite"
	"github.com/verida/notification-server/pkg/logger"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = config.BackendMemory

		store, err := NewStore(ctx, cfg, logger.Nop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &memory.Store{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = config.BackendSQLite
		cfg.SQLite.Path = filepath.Join(t.TempDir(), "devices.db")

		store, err := NewStore(ctx, cfg, logger.Nop())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &sqlite.Store{}, store)
		assert.NoError(t, store.Create(ctx))
	})

	t.Run("couchdb is lazy", func(t *testing.T) {
		cfg := config.Default()
		cfg.CouchDB.Host = "couchdb.invalid"

		store, err := NewStore(ctx, cfg, logger.Nop())
		require.NoError(t, err)
		assert.IsType(t, &couchdb.Store{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "mongo"

		_, err := NewStore(ctx, cfg, logger.Nop())
		assert.Error(t, err)
	})
}
