package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/infrastructure/persistence/storetest"
)

// TestRecordStoreContract needs a scratch database; it is skipped unless
// PG_TEST_HOST is set. The device_records table is truncated first.
func TestRecordStoreContract(t *testing.T) {
	host := os.Getenv("PG_TEST_HOST")
	if host == "" {
		t.Skip("PG_TEST_HOST not set")
	}

	cfg := config.Default().Database
	cfg.Host = host
	if v := os.Getenv("PG_TEST_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("PG_TEST_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PG_TEST_NAME"); v != "" {
		cfg.Database = v
	}

	ctx := context.Background()
	db, err := NewDB(ctx, &cfg)
	require.NoError(t, err)

	store := NewRecordStore(db)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Create(ctx))
	_, err = db.Pool.Exec(ctx, "TRUNCATE device_records")
	require.NoError(t, err)

	storetest.Run(t, store)
}
