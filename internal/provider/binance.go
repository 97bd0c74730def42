package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// DefaultBinanceSkew bounds how far a requested instant may lie from the
// current time before the provider declines it.
const DefaultBinanceSkew = 5 * time.Minute

// Binance reports current spot balances via the account endpoint. The spot
// API cannot reconstruct past balances (declared historical capability:
// none), so any instant outside a small skew of now is rejected with
// ErrUnsupportedTimeRange and the aggregator skips this provider with a
// warning.
type Binance struct {
	name   string
	client *binance.Client
	skew   time.Duration

	now func() time.Time
}

// NewBinance creates a Binance spot-account provider.
func NewBinance(name, apiKey, apiSecret string, skew time.Duration) *Binance {
	if skew <= 0 {
		skew = DefaultBinanceSkew
	}
	return &Binance{
		name:   name,
		client: binance.NewClient(apiKey, apiSecret),
		skew:   skew,
		now:    time.Now,
	}
}

func (b *Binance) Name() string { return b.name }

// FetchBalances returns free+locked spot balances when the instant is within
// the supported window.
func (b *Binance) FetchBalances(ctx context.Context, at domain.PointInTime) ([]domain.BalanceEntry, error) {
	if drift := b.now().Sub(at.UTC()); drift > b.skew || drift < -b.skew {
		return nil, fmt.Errorf("%s: spot API reports current balances only, cannot answer for %s: %w",
			b.name, at, domain.ErrUnsupportedTimeRange)
	}

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, mapBinanceError(err))
	}

	var entries []domain.BalanceEntry
	for _, bal := range account.Balances {
		total := domain.SafeParse(bal.Free).Add(domain.SafeParse(bal.Locked))
		if !total.IsPositive() {
			continue
		}
		entry, err := domain.NewBalanceEntry(domain.NewAsset(bal.Asset), total, b.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapBinanceError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003: // TOO_MANY_REQUESTS
			return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrRateLimited)
		case -2014, -2015: // bad API key / invalid key, IP or permissions
			return fmt.Errorf("%s: %w", apiErr.Message, domain.ErrAuthenticationFailed)
		default:
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
}
