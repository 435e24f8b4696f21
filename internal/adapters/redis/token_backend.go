package redis

// Package redis provides the durable token backing for the portal gateway.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBackend is the Redis-based durable backing. Keys survive gateway
// restarts, which is what makes a remembered session rehydratable.
type TokenBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewTokenBackend creates a Redis-backed token backing.
func NewTokenBackend(client redis.UniversalClient) *TokenBackend {
	return &TokenBackend{
		client: client,
		prefix: "portal:",
	}
}

// NewTokenBackendWithPrefix creates a Redis-backed token backing with a
// custom key prefix.
func NewTokenBackendWithPrefix(client redis.UniversalClient, prefix string) *TokenBackend {
	return &TokenBackend{
		client: client,
		prefix: prefix,
	}
}

func (b *TokenBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (b *TokenBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *TokenBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = b.prefix + k
	}
	if err := b.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
