// Package cache provides the bypassable, single-flight-capable response
// cache backing the embedding gateway (spec 4.2, 5).
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin JSON-marshaling wrapper over go-redis, scoped to the
// embedding/LLM response cache.
type RedisClient struct {
	client *redis.Client
}

// Config holds Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3 * time.Second
	}
	return c
}

// NewRedisClient builds a go-redis client from Config.
func NewRedisClient(cfg Config) *RedisClient {
	cfg = cfg.withDefaults()
	return &RedisClient{client: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})}
}

// Set stores a JSON-serialized value under key with the given TTL.
func (r *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Get deserializes the value stored at key into dest. Returns redis.Nil when
// the key is absent; callers treat that as a cache miss, never an error.
func (r *RedisClient) Get(ctx context.Context, key string, dest any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// IsMiss reports whether err represents a cache miss rather than a backend
// failure.
func IsMiss(err error) bool {
	return err == redis.Nil
}
