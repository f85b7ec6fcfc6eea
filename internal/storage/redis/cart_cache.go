package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	// DefaultCartTTL: базовое время жизни корзины в кэше.
	DefaultCartTTL = 15 * time.Minute
	maxTTLJitter   = 5 * time.Minute
)

// ErrCacheMiss возвращается, когда корзины нет в кэше.
var ErrCacheMiss = errors.New("cart cache miss")

// CartCache кэширует корзины пользователей в Redis (cache-aside).
// К TTL добавляется случайный сдвиг, чтобы записи не истекали одновременно.
type CartCache struct {
	client  goredis.UniversalClient
	baseTTL time.Duration
	jitter  func() time.Duration
}

// NewCartCache создаёт кэш корзин. ttl<=0 означает DefaultCartTTL.
func NewCartCache(client goredis.UniversalClient, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartCache{
		client:  client,
		baseTTL: ttl,
		jitter: func() time.Duration {
			return time.Duration(rand.Int64N(int64(maxTTLJitter)))
		},
	}
}

// Get возвращает корзину из кэша или ErrCacheMiss.
func (c *CartCache) Get(ctx context.Context, userID int64) (domain.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cached cart: %w", err)
	}
	return cart, nil
}

// Set кладёт корзину в кэш.
func (c *CartCache) Set(ctx context.Context, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := c.client.Set(ctx, cartKey(cart.UserID), data, c.baseTTL+c.jitter()).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Invalidate удаляет корзину пользователя из кэша.
func (c *CartCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis для health-проверки.
func (c *CartCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("shop:cart:%d", userID)
}
