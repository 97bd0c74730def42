package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// Manual returns statically declared holdings. It ignores the requested
// instant and never fails, which makes it the home for off-exchange assets
// the user vouches for (cold wallets, paper backups).
type Manual struct {
	name    string
	entries []domain.BalanceEntry
}

// NewManual builds a manual provider from symbol -> quantity declarations.
func NewManual(name string, holdings map[string]string) (*Manual, error) {
	entries := make([]domain.BalanceEntry, 0, len(holdings))
	for symbol, quantity := range holdings {
		amount, err := decimal.NewFromString(quantity)
		if err != nil {
			return nil, fmt.Errorf("manual holding %s: parsing quantity %q: %w", symbol, quantity, err)
		}
		entry, err := domain.NewBalanceEntry(domain.NewAsset(symbol), amount, name)
		if err != nil {
			return nil, fmt.Errorf("manual holding: %w", err)
		}
		entries = append(entries, entry)
	}
	return &Manual{name: name, entries: entries}, nil
}

func (m *Manual) Name() string { return m.name }

// FetchBalances returns the declared holdings regardless of the instant.
func (m *Manual) FetchBalances(_ context.Context, _ domain.PointInTime) ([]domain.BalanceEntry, error) {
	out := make([]domain.BalanceEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}
