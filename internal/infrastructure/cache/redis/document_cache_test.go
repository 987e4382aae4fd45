package redis

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verida/notification-server/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewClient(context.Background(), &config.RedisConfig{Host: host, Port: port, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestDocumentCache_RoundTrip(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewDocumentCache(client, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "did:x:1/ctxA")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "did:x:1/ctxA", []byte(`{"id":"did:x:1"}`)))
	assert.True(t, mr.Exists("did_doc:did:x:1/ctxA"))

	doc, ok, err := cache.Get(ctx, "did:x:1/ctxA")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":"did:x:1"}`, string(doc))
}

func TestDocumentCache_Expires(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewDocumentCache(client, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "did:x:1/ctxA", []byte(`{}`)))
	mr.FastForward(31 * time.Second)

	_, ok, err := cache.Get(ctx, "did:x:1/ctxA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentCache_ZeroTTLDisables(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewDocumentCache(client, 0)

	require.NoError(t, cache.Set(context.Background(), "did:x:1/ctxA", []byte(`{}`)))
	assert.False(t, mr.Exists("did_doc:did:x:1/ctxA"))
}

func TestDocumentCache_Invalidate(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewDocumentCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte(`{}`)))
	require.NoError(t, cache.Invalidate(ctx, "k"))

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Health(t *testing.T) {
	client, mr := newTestClient(t)
	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}
