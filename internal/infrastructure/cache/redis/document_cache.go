package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/verida/notification-server/pkg/errors"
)

const didDocumentPrefix = "did_doc:"

// DocumentCache keeps resolved DID documents in Redis so repeated
// authorizations for the same DID and context skip the DID server.
type DocumentCache struct {
	client *Client
	ttl    time.Duration
}

// NewDocumentCache creates a cache whose entries expire after ttl.
func NewDocumentCache(client *Client, ttl time.Duration) *DocumentCache {
	return &DocumentCache{client: client, ttl: ttl}
}

// Get returns the cached document for key, reporting false on a miss.
func (c *DocumentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, didDocumentPrefix+key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(err, "failed to read cached DID document")
	}
	return data, true, nil
}

// Set stores a document. A non-positive ttl disables caching.
func (c *DocumentCache) Set(ctx context.Context, key string, document []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, didDocumentPrefix+key, document, c.ttl); err != nil {
		return apperrors.Wrap(err, "failed to cache DID document")
	}
	return nil
}

// Invalidate drops a cached document.
func (c *DocumentCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Delete(ctx, didDocumentPrefix+key)
}
