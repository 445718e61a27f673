package marketdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/options_alert_bot/internal/domain"
)

type cachedSnapshot struct {
	snap   *domain.IndicatorSnapshot
	expiry time.Time
}

// SnapshotCache wraps a MarketData source with a short per-symbol TTL
// cache, so an overlapping sweep and monitor tick cost one upstream
// fetch instead of two. Option prices pass straight through; exits
// should see the freshest premium available.
type SnapshotCache struct {
	inner  domain.MarketData
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSnapshot
}

func NewSnapshotCache(inner domain.MarketData, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		inner:  inner,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cachedSnapshot),
	}
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, symbol string) (*domain.IndicatorSnapshot, error) {
	c.mu.Lock()
	if cached, ok := c.cache[symbol]; ok {
		if c.now().Before(cached.expiry) {
			c.mu.Unlock()
			return cached.snap, nil
		}
		delete(c.cache, symbol)
	}
	c.mu.Unlock()

	snap, err := c.inner.GetSnapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[symbol] = cachedSnapshot{snap: snap, expiry: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return snap, nil
}

func (c *SnapshotCache) GetOptionPrice(ctx context.Context, symbol string) (float64, error) {
	return c.inner.GetOptionPrice(ctx, symbol)
}
