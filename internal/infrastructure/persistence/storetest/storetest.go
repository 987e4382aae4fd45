// Package storetest holds the behavioural contract every registry.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/internal/domain/registry"
	apperrors "github.com/verida/notification-server/pkg/errors"
)

// Run exercises store against the registry.Store contract. The store must
// be empty.
func Run(t *testing.T, store registry.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx))
	require.NoError(t, store.Create(ctx), "Create must tolerate an existing database")
	require.NoError(t, store.Health(ctx))

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, registry.DeriveKey("did:test:missing", "ctx"))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("create then get", func(t *testing.T) {
		rec := registry.NewRecord(registry.DeriveKey("did:test:1", "ctxA"), "ctxA")
		rec.AddToken("dev1")

		rev, err := store.Put(ctx, rec)
		require.NoError(t, err)
		require.NotEmpty(t, rev)

		got, err := store.Get(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, "ctxA", got.Context)
		assert.Equal(t, []string{"dev1"}, got.DeviceTokens)
		assert.Equal(t, rev, got.Revision)
	})

	t.Run("create twice conflicts", func(t *testing.T) {
		key := registry.DeriveKey("did:test:2", "ctxA")
		_, err := store.Put(ctx, registry.NewRecord(key, "ctxA"))
		require.NoError(t, err)

		_, err = store.Put(ctx, registry.NewRecord(key, "ctxA"))
		assert.ErrorIs(t, err, apperrors.ErrRevisionConflict)
	})

	t.Run("update with current revision", func(t *testing.T) {
		key := registry.DeriveKey("did:test:3", "ctxA")
		rev1, err := store.Put(ctx, registry.NewRecord(key, "ctxA"))
		require.NoError(t, err)

		rec, err := store.Get(ctx, key)
		require.NoError(t, err)
		rec.AddToken("dev1")
		rec.AddToken("dev2")

		rev2, err := store.Put(ctx, rec)
		require.NoError(t, err)
		assert.NotEqual(t, rev1, rev2)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"dev1", "dev2"}, got.DeviceTokens)
	})

	t.Run("update with stale revision conflicts", func(t *testing.T) {
		key := registry.DeriveKey("did:test:4", "ctxA")
		_, err := store.Put(ctx, registry.NewRecord(key, "ctxA"))
		require.NoError(t, err)

		first, err := store.Get(ctx, key)
		require.NoError(t, err)
		second, err := store.Get(ctx, key)
		require.NoError(t, err)

		first.AddToken("dev1")
		_, err = store.Put(ctx, first)
		require.NoError(t, err)

		second.AddToken("dev2")
		_, err = store.Put(ctx, second)
		assert.ErrorIs(t, err, apperrors.ErrRevisionConflict)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []string{"dev1"}, got.DeviceTokens)
	})

	t.Run("empty record persists", func(t *testing.T) {
		key := registry.DeriveKey("did:test:5", "ctxA")
		rec := registry.NewRecord(key, "ctxA")
		rec.AddToken("dev1")
		_, err := store.Put(ctx, rec)
		require.NoError(t, err)

		rec, err = store.Get(ctx, key)
		require.NoError(t, err)
		rec.RemoveToken("dev1")
		_, err = store.Put(ctx, rec)
		require.NoError(t, err)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, got.DeviceTokens)
	})
}
