package db

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// CacheProtection configures ProtectedCache's behavior around cache
// misses. The PriceService wraps its Redis tier in a ProtectedCache so
// that N concurrent lookups for the same never-priced (symbol, hour) pair
// collapse into a single provider round trip (§5 "Shared resources").
type CacheProtection struct {
	// PreventPenetration: also cache a marker for keys the loader
	// legitimately found nothing for (PRICE_MISSING, §7), so repeated
	// lookups for an unpriceable symbol don't re-hit the provider chain
	// every time.
	PreventPenetration bool
	EmptyValueTTL      time.Duration

	// PreventBreakdown: serialize concurrent loaders for the same key
	// behind a per-key mutex instead of letting every caller hit the
	// provider chain simultaneously.
	PreventBreakdown bool
	LockTimeout      time.Duration

	// PreventAvalanche: jitter the TTL so a burst of entries written at
	// the same time don't all expire together.
	PreventAvalanche bool
	TTLRandomFactor  float64
}

// DefaultCacheProtection is sized for the PriceService's read-through
// pattern: a short empty-value TTL so a transient provider outage doesn't
// poison the miss marker for long, and a 5s lock timeout bounded by the
// provider chain's own per-call timeout (§5).
var DefaultCacheProtection = CacheProtection{
	PreventPenetration: true,
	EmptyValueTTL:      1 * time.Minute,
	PreventBreakdown:   true,
	LockTimeout:        5 * time.Second,
	PreventAvalanche:   true,
	TTLRandomFactor:    0.1,
}

// ProtectedCache wraps a CacheInterface with the three protections above.
type ProtectedCache struct {
	cache      CacheInterface
	protection CacheProtection
	locks      map[string]*sync.Mutex
	mu         sync.RWMutex
}

func NewProtectedCache(cache CacheInterface, protection CacheProtection) *ProtectedCache {
	return &ProtectedCache{
		cache:      cache,
		protection: protection,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (p *ProtectedCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.cache.Get(ctx, key)
	if err == nil {
		if isEmptyMarker(data) {
			return nil, ErrCacheMiss
		}
		return data, nil
	}

	if p.protection.PreventPenetration {
		emptyData, emptyErr := p.cache.Get(ctx, p.emptyKey(key))
		if emptyErr == nil && isEmptyMarker(emptyData) {
			return nil, ErrCacheMiss
		}
	}
	return nil, err
}

func (p *ProtectedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if p.protection.PreventAvalanche {
		ttl = p.randomizeTTL(ttl)
	}
	return p.cache.Set(ctx, key, value, ttl)
}

// SetEmpty records that a lookup for key legitimately found nothing, so a
// repeat lookup within EmptyValueTTL skips the provider chain.
func (p *ProtectedCache) SetEmpty(ctx context.Context, key string) error {
	if !p.protection.PreventPenetration {
		return nil
	}
	return p.cache.Set(ctx, p.emptyKey(key), []byte{0}, p.protection.EmptyValueTTL)
}

// GetWithLock returns the cached value for key, or — on a miss — serializes
// concurrent callers behind a per-key lock and runs loader exactly once
// per lock holder, caching whatever it returns.
func (p *ProtectedCache) GetWithLock(ctx context.Context, key string, loader func() ([]byte, time.Duration, error)) ([]byte, error) {
	if data, err := p.Get(ctx, key); err == nil {
		return data, nil
	}

	if !p.protection.PreventBreakdown {
		return p.loadAndSet(ctx, key, loader)
	}

	lock := p.getLock(key)
	acquired := make(chan struct{}, 1)
	go func() {
		lock.Lock()
		acquired <- struct{}{}
	}()

	select {
	case <-acquired:
		defer lock.Unlock()
		if data, err := p.Get(ctx, key); err == nil {
			return data, nil
		}
		return p.loadAndSet(ctx, key, loader)

	case <-time.After(p.protection.LockTimeout):
		// Lock contended past the timeout: load anyway. A duplicate
		// provider call is acceptable; a stalled response is not.
		return p.loadAndSet(ctx, key, loader)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ProtectedCache) loadAndSet(ctx context.Context, key string, loader func() ([]byte, time.Duration, error)) ([]byte, error) {
	data, ttl, err := loader()
	if err != nil {
		_ = p.SetEmpty(ctx, key)
		return nil, err
	}
	if len(data) == 0 {
		_ = p.SetEmpty(ctx, key)
		return nil, ErrCacheMiss
	}
	_ = p.Set(ctx, key, data, ttl)
	return data, nil
}

func (p *ProtectedCache) Delete(ctx context.Context, key string) error {
	_ = p.cache.Delete(ctx, p.emptyKey(key))
	return p.cache.Delete(ctx, key)
}

// InvalidateEmptyMarker clears only the PRICE_MISSING marker for key,
// leaving any real cached value untouched. Store calls this right after
// successfully inserting a PriceCacheEntry for a (symbol, hour) pair the
// provider chain previously failed to price, so a concurrent lookup
// stuck behind a stale empty marker picks up the now-available price on
// its next Get instead of waiting out EmptyValueTTL (§4.5 step 4, §7).
func (p *ProtectedCache) InvalidateEmptyMarker(ctx context.Context, key string) error {
	if !p.protection.PreventPenetration {
		return nil
	}
	return p.cache.Delete(ctx, p.emptyKey(key))
}

func (p *ProtectedCache) Exists(ctx context.Context, key string) (bool, error) {
	return p.cache.Exists(ctx, key)
}

func (p *ProtectedCache) emptyKey(key string) string { return key + ":miss" }

func isEmptyMarker(data []byte) bool { return len(data) == 1 && data[0] == 0 }

func (p *ProtectedCache) getLock(key string) *sync.Mutex {
	p.mu.RLock()
	lock, ok := p.locks[key]
	p.mu.RUnlock()
	if ok {
		return lock
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if lock, ok := p.locks[key]; ok {
		return lock
	}
	lock = &sync.Mutex{}
	p.locks[key] = lock
	return lock
}

func (p *ProtectedCache) randomizeTTL(baseTTL time.Duration) time.Duration {
	if p.protection.TTLRandomFactor <= 0 {
		return baseTTL
	}
	factor := 1.0 + (rand.Float64()*2.0-1.0)*p.protection.TTLRandomFactor
	return time.Duration(float64(baseTTL) * factor)
}
