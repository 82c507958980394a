package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache fronts the mongo flight catalog; entries expire so fare or
// schedule edits become visible within the TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func flightKey(id uuid.UUID) string {
	return "catalog:flight:" + id.String()
}

// GetFlight unmarshals a cached catalog document into dest. The bool
// reports a hit.
func (c *Cache) GetFlight(ctx context.Context, id uuid.UUID, dest any) (bool, error) {
	val, err := c.client.Get(ctx, flightKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(val, dest)
}

func (c *Cache) SetFlight(ctx context.Context, id uuid.UUID, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightKey(id), data, c.ttl).Err()
}

func (c *Cache) InvalidateFlight(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, flightKey(id)).Err()
}
