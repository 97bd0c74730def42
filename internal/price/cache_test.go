package price

import (
	"testing"
	"time"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

func TestCacheKey(t *testing.T) {
	bucket := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	key := cacheKey("BTC", "USD", "coingecko", bucket)
	if key != "BTC=>USD:coingecko:1713175200" {
		t.Errorf("cacheKey() = %q", key)
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewMemoryCache()

	quote := domain.PriceQuote{Asset: "BTC", Fiat: "USD", Source: "coingecko"}
	c.Set("test-key", quote)

	got, ok := c.Get("test-key")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if got.Source != "coingecko" {
		t.Errorf("cached source = %q", got.Source)
	}

	_, ok = c.Get("missing-key")
	if ok {
		t.Error("expected cache miss for missing key")
	}
}
