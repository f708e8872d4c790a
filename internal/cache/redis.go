// Package cache provides a tiny Redis client wrapper for batch result storage
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client used as an optional sink for batch output
// tensors
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address
// If addr is empty, defaults to localhost:6379
func New(addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,  // Default DB
	})

	// Test connection
	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// SetResult stores one output buffer's bytes for a batch under
// batch:<id>:<output name> with the specified TTL
func (c *Cache) SetResult(batchID, output string, data []byte, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	ctx := context.Background()
	key := fmt.Sprintf("batch:%s:%s", batchID, output)

	err := c.client.Set(ctx, key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set result %s for batch %s: %w", output, batchID, err)
	}

	return nil
}

// GetResult retrieves one output buffer's bytes for a batch
func (c *Cache) GetResult(batchID, output string) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}

	ctx := context.Background()
	key := fmt.Sprintf("batch:%s:%s", batchID, output)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Key does not exist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s for batch %s: %w", output, batchID, err)
	}

	return data, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
