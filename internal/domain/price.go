package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is the price of one asset unit in the run's fiat currency at a
// specific instant. Immutable once created; cached by the price resolver.
type PriceQuote struct {
	Asset     Asset
	Fiat      Fiat
	Requested PointInTime
	// ActualTime is the timestamp of the underlying market data point. It
	// differs from Requested when the resolver fell back to an earlier point.
	ActualTime time.Time
	Price      decimal.Decimal
	Source     string
}

// Approximate reports whether the quote was derived from a data point other
// than the requested instant.
func (q PriceQuote) Approximate() bool {
	return !q.ActualTime.Equal(q.Requested.UTC())
}
