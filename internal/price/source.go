package price

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// PricePoint is one historical market data point.
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// Source serves historical price points for an asset/fiat pair. The resolver
// tries sources in configured priority order; a source that cannot serve the
// pair returns an error wrapping domain.ErrPriceUnavailable so the next one
// gets a chance.
type Source interface {
	Name() string
	// Granularity is the source's native data resolution; requested instants
	// are bucketed to it for cache keys.
	Granularity() time.Duration
	// PricePoints returns data points within [from, to], chronologically
	// ordered.
	PricePoints(ctx context.Context, asset domain.Asset, fiat domain.Fiat, from, to time.Time) ([]PricePoint, error)
}
