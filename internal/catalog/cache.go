package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "catalog:snapshot:v1"

// Cache keeps a short-lived merged catalog snapshot in Redis. A zero TTL
// disables it so every load reads the backend feeds fresh.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a snapshot cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get returns the cached snapshot and whether it existed.
func (c *Cache) Get(ctx context.Context) (*Catalog, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, false, err
	}
	return &cat, true, nil
}

// Put stores the snapshot with the configured TTL.
func (c *Cache) Put(ctx context.Context, cat *Catalog) error {
	if !c.enabled() || cat == nil {
		return nil
	}
	data, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey, data, c.ttl).Err()
}

// Invalidate drops the snapshot, for example after an order changed stock.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, snapshotKey).Err()
}
