// Package natskv implements the cache port on a NATS JetStream KV bucket,
// giving every core instance the same view of cached session history.
package natskv

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a JetStream KeyValue bucket as a shared remote cache.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a value. A missing key is a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

// Set stores a value. Expiry is governed by the bucket's TTL, not per entry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Delete removes a value. Deleting an absent key is a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
