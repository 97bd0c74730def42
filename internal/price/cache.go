package price

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// Cache stores resolved quotes for the lifetime of the process. There is no
// expiry and no cross-run persistence: within one run the same lookup must
// always return the identical quote. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (domain.PriceQuote, bool)
	Set(key string, quote domain.PriceQuote)
}

// cacheKey formats: "{asset}=>{fiat}:{source}:{bucketed unix}" e.g. "BTC=>USD:coingecko:1713175200"
func cacheKey(asset domain.Asset, fiat domain.Fiat, source string, bucket time.Time) string {
	return fmt.Sprintf("%s=>%s:%s:%d", asset, fiat, source, bucket.Unix())
}

// MemoryCache is the in-process Cache implementation.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]domain.PriceQuote
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]domain.PriceQuote),
	}
}

func (c *MemoryCache) Get(key string) (domain.PriceQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quote, ok := c.entries[key]
	return quote, ok
}

func (c *MemoryCache) Set(key string, quote domain.PriceQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = quote
}
