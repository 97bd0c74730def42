package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceEntry is one asset holding reported by a balance provider for the
// requested instant. Entries are owned transiently by the aggregator and
// never persisted.
type BalanceEntry struct {
	Asset    Asset
	Amount   decimal.Decimal
	Provider string
}

// NewBalanceEntry rejects negative amounts; providers report holdings, not
// positions.
func NewBalanceEntry(asset Asset, amount decimal.Decimal, provider string) (BalanceEntry, error) {
	if amount.IsNegative() {
		return BalanceEntry{}, fmt.Errorf("negative amount %s for %s from %s", amount, asset, provider)
	}
	return BalanceEntry{Asset: asset, Amount: amount, Provider: provider}, nil
}
