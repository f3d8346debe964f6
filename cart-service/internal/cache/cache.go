// Package cache holds the read-through copy of each user's cart. The
// database stays authoritative; every write drops the cached entry.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// ErrCacheMiss means the cart is not cached, not that it does not exist.
var ErrCacheMiss = errors.New("cache miss")

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis returns a client that has answered a ping.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
