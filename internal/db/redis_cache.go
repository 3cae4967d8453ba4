package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// CacheInterface is the hot-tier read-through cache the PriceService
// consults before falling back to the GORM-backed PriceCacheEntry table
// (§4.5 step 2, SPEC_FULL "L1/L2 cache hierarchy"). RedisCache is the
// production implementation; MemoryCache backs tests and any deployment
// without Redis.
type CacheInterface interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// ErrCacheMiss is returned by Get when key is absent or expired. Callers
// fall through to the next tier rather than treating this as fatal.
var ErrCacheMiss = fmt.Errorf("cache: key not found")

// PriceCacheKey is the canonical L1 cache key for one (symbol, hour)
// price row, matching the uniqueness of the L2 PriceCacheEntry table's
// (symbol, timestamp_hour) index (§4.5 step 4). Store builds its keys
// through this type; internal/price cannot import this package and builds
// the same "price:SYMBOL:hour" string in its own cacheKey helper, so the
// two definitions are kept identical by hand.
type PriceCacheKey struct {
	Symbol string
	Hour   int64
}

func (k PriceCacheKey) String() string {
	return "price:" + strings.ToUpper(k.Symbol) + ":" + strconv.FormatInt(k.Hour, 10)
}

// RedisCache is the L1 price cache, addressed by PriceCacheKey(symbol, hour).
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisClient *redis.Client) *RedisCache {
	return &RedisCache{client: redisClient}
}

// NewRedisCacheFromOptions dials addr/password/db and verifies
// connectivity with a short-lived ping before returning.
func NewRedisCacheFromOptions(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		// Standard (non-Enterprise) Redis servers don't support
		// CLIENT MAINT_NOTIFICATIONS; disabling this avoids a noisy
		// warning on every connection.
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// MemoryCache is an in-process CacheInterface used where Redis isn't
// configured (unit tests, single-process deployments). Price-cache
// entries are immutable once written (I4) so eviction semantics beyond a
// TTL sweep don't matter here.
type MemoryCache struct {
	data map[string]cacheItem
	mu   sync.RWMutex
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{data: make(map[string]cacheItem)}
	go mc.cleanup()
	return mc
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(item.expiresAt) {
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cacheItem{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return !time.Now().After(item.expiresAt), nil
}

func (m *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for key, item := range m.data {
			if now.After(item.expiresAt) {
				delete(m.data, key)
			}
		}
		m.mu.Unlock()
	}
}
