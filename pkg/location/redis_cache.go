package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixCache keeps the last fix in Redis so it survives agent restarts.
type RedisFixCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisFixCache creates a cache on an existing client. A zero ttl keeps the key forever.
func NewRedisFixCache(client *redis.Client, key string, ttl time.Duration) *RedisFixCache {
	return &RedisFixCache{client: client, key: key, ttl: ttl}
}

func (c *RedisFixCache) Load(ctx context.Context) (Location, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, fmt.Errorf("redis get %s: %w", c.key, err)
	}

	var loc Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return Location{}, false, fmt.Errorf("decode cached fix: %w", err)
	}
	return loc, true, nil
}

func (c *RedisFixCache) Store(ctx context.Context, loc Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode fix: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", c.key, err)
	}
	return nil
}
