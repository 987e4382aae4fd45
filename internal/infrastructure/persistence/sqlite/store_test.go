package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/internal/infrastructure/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "devices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	storetest.Run(t, store)
}

func TestStoreContract_InMemory(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	storetest.Run(t, store)
}
