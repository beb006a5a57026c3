package market

import (
	"sync"
	"time"

	"github.com/velora/optionsim/internal/domain"
)

// CandleCache holds the most recently fetched kline window so chart and
// indicator reads do not hit the upstream feed on every request.
type CandleCache struct {
	mu        sync.RWMutex
	candles   []domain.Candle
	updatedAt time.Time
}

// NewCandleCache returns an empty cache.
func NewCandleCache() *CandleCache {
	return &CandleCache{}
}

// Set replaces the cached window.
func (c *CandleCache) Set(candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles = candles
	c.updatedAt = time.Now().UTC()
}

// Get returns a copy of the cached window and whether the cache has ever
// been populated.
func (c *CandleCache) Get() ([]domain.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.candles) == 0 {
		return nil, false
	}
	out := make([]domain.Candle, len(c.candles))
	copy(out, c.candles)
	return out, true
}

// UpdatedAt reports when the cache was last refreshed.
func (c *CandleCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
