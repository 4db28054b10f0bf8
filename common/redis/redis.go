package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tdrizzle0202/hiddencash/common/config"
)

// RedisClient wraps the go-redis client with the small surface the
// pipeline needs: plain KV plus per-key mutual exclusion.
type RedisClient struct {
	client *redis.Client
}

// NewClient creates a new Redis client instance
func NewClient(cfg config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
	}, nil
}

// Close closes the Redis client connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// Set sets a key-value pair with optional expiration
func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value by key
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Delete removes a key
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Lock is a held per-key lock. Release only deletes the key when the
// stored token still matches, so an expired lock re-acquired by another
// worker is never released by the original holder.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// releaseScript deletes the lock key only if the token matches.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireLock takes a per-key lock with the given TTL. Returns (nil, false)
// without error when the lock is already held, which callers treat as
// "someone else is working on this key".
func (c *RedisClient) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{client: c.client, key: key, token: token}, true, nil
}

// Release frees the lock if still held by this owner.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// GetClient returns the underlying Redis client
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}
