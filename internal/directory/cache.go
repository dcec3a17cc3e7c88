package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"quill/api/internal/store"
)

// cachedUser is the JSON document kept per user key.
type cachedUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// RedisCache is a read-through cache for user lookups. Cache misses and redis
// faults both fall back to the database; a fault is logged, never surfaced.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redis at redisURL.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: "user:", ttl: ttl}
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

func (c *RedisCache) Get(ctx context.Context, userID string) (store.User, bool) {
	payload, err := c.client.Get(ctx, c.key(userID)).Result()
	if err == redis.Nil {
		return store.User{}, false
	}
	if err != nil {
		log.Printf("directory: cache get %s: %v", userID, err)
		return store.User{}, false
	}

	var data cachedUser
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		log.Printf("directory: cache decode %s: %v", userID, err)
		return store.User{}, false
	}
	return store.User{
		ID:          data.ID,
		Email:       data.Email,
		DisplayName: data.DisplayName,
		Role:        data.Role,
	}, true
}

func (c *RedisCache) Put(ctx context.Context, user store.User) {
	payload, err := json.Marshal(cachedUser{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
	if err != nil {
		log.Printf("directory: cache encode %s: %v", user.ID, err)
		return
	}
	if err := c.client.Set(ctx, c.key(user.ID), payload, c.ttl).Err(); err != nil {
		log.Printf("directory: cache put %s: %v", user.ID, err)
	}
}

func (c *RedisCache) Drop(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		log.Printf("directory: cache drop %s: %v", userID, err)
	}
}
