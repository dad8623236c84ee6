package credits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/holdgate/holdgate/internal/cache"
	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/metrics"
)

const (
	supplyCacheKey = "credits:circulating_supply"
	poolCacheKey   = "credits:daily_pool"
)

// SupplyOracle reads the circulating supply of the gating token.
type SupplyOracle interface {
	CirculatingSupply(ctx context.Context) (float64, error)
}

// SupplyCache serves the circulating supply and daily pool shared by every user.
//
// Lookup order for supply: shared cache, then the oracle (populating the cache),
// then the last good value seen by this process, then the configured fallback.
type SupplyCache struct {
	oracle         SupplyOracle
	store          cache.Store
	ttl            time.Duration
	fallbackSupply float64
	defaultPool    float64
	clock          clock.Clock

	mu         sync.RWMutex
	lastSupply float64
	lastAt     time.Time
}

func NewSupplyCache(oracle SupplyOracle, store cache.Store, ttl time.Duration, fallbackSupply, defaultPool float64, clk clock.Clock) *SupplyCache {
	return &SupplyCache{
		oracle:         oracle,
		store:          store,
		ttl:            ttl,
		fallbackSupply: fallbackSupply,
		defaultPool:    defaultPool,
		clock:          clk,
	}
}

// CirculatingSupply never fails; degraded reads are logged and counted.
func (c *SupplyCache) CirculatingSupply(ctx context.Context) float64 {
	v, err := cache.GetFloat(ctx, c.store, supplyCacheKey)
	switch {
	case err == nil && v > 0:
		c.remember(v)
		return v
	case err != nil && !errors.Is(err, cache.ErrMiss):
		slog.Warn("credits: supply cache read failed", "error", err)
		// Shared cache is down; a fresh local value still counts as a hit.
		if last, fresh := c.last(); fresh {
			return last
		}
	}

	v, err = c.oracle.CirculatingSupply(ctx)
	if err != nil || v <= 0 {
		metrics.OracleFallbacksTotal.WithLabelValues("supply").Inc()
		if last, _ := c.last(); last > 0 {
			slog.Warn("credits: supply oracle failed, using last known value", "error", err, "supply", last)
			return last
		}
		slog.Warn("credits: supply oracle failed, using fallback", "error", err, "supply", c.fallbackSupply)
		return c.fallbackSupply
	}

	c.remember(v)
	if err := cache.SetFloat(ctx, c.store, supplyCacheKey, v, c.ttl); err != nil {
		slog.Warn("credits: supply cache write failed", "error", err)
	}
	return v
}

// DailyPool returns the cached pool, seeding the cache with the configured default on a miss.
// Operators override the pool by writing the cache key.
func (c *SupplyCache) DailyPool(ctx context.Context) float64 {
	v, err := cache.GetFloat(ctx, c.store, poolCacheKey)
	if err == nil && v > 0 {
		return v
	}
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		slog.Warn("credits: pool cache read failed", "error", err)
		return c.defaultPool
	}

	if err := cache.SetFloat(ctx, c.store, poolCacheKey, c.defaultPool, c.ttl); err != nil {
		slog.Warn("credits: pool cache write failed", "error", err)
	}
	return c.defaultPool
}

func (c *SupplyCache) remember(v float64) {
	c.mu.Lock()
	c.lastSupply = v
	c.lastAt = c.clock.Now()
	c.mu.Unlock()
}

func (c *SupplyCache) last() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fresh := c.lastSupply > 0 && c.clock.Now().Sub(c.lastAt) < c.ttl
	return c.lastSupply, fresh
}
