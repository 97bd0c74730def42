// Package provider implements the balance sources a snapshot draws from:
// exchange accounts, on-chain addresses and manually declared holdings.
// New source kinds are added as new variants; the aggregator never changes.
package provider

import (
	"context"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// Provider reports the balances a single source held as of a given instant.
// Implementations perform outbound calls only and mutate no shared state.
//
// A provider that cannot answer for the requested instant returns an error
// wrapping domain.ErrUnsupportedTimeRange; the aggregator skips it with a
// warning instead of failing the run.
type Provider interface {
	Name() string
	FetchBalances(ctx context.Context, at domain.PointInTime) ([]domain.BalanceEntry, error)
}
