package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/homeservices/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// keyVersion is bumped whenever the cached cart layout changes, so entries
// written by an older build are never decoded.
const keyVersion = "v2"

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisCache keeps whole carts as JSON under cart:<version>:<userID>.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// Get returns the cached cart. An entry that cannot be decoded, or that
// belongs to someone else, is evicted and reported as a miss so the caller
// reloads from the database.
func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cacheKey(userID)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil || cart.UserID != userID {
		if derr := r.client.Del(ctx, key).Err(); derr != nil {
			return nil, fmt.Errorf("evict unusable cart entry: %w", derr)
		}
		return nil, ErrCacheMiss
	}
	if cart.Items == nil {
		cart.Items = []domain.CartLine{}
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	if cart.UserID != userID {
		return fmt.Errorf("cart of %q cached under %q", cart.UserID, userID)
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := r.client.Set(ctx, cacheKey(userID), data, r.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// ttl spreads expiries over an extra quarter of the base TTL so carts
// cached together do not all expire together.
func (r *RedisCache) ttl() time.Duration {
	spread := int64(r.baseTTL / 4 / time.Second)
	if spread <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + time.Duration(rand.Int64N(spread+1))*time.Second
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s:%s", keyVersion, userID)
}
