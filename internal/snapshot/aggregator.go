// Package snapshot builds and stores the point-in-time valuation report.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/provider"
	"github.com/cryptoshot/cryptoshot/internal/retrier"
)

// DefaultMaxInFlight bounds concurrent upstream calls per stage.
const DefaultMaxInFlight = 4

// PriceResolver maps (asset, fiat, instant) to a quote.
type PriceResolver interface {
	Resolve(ctx context.Context, asset domain.Asset, fiat domain.Fiat, at domain.PointInTime) (domain.PriceQuote, error)
}

// Aggregator orchestrates concurrent provider queries and price lookups into
// one Snapshot.
type Aggregator struct {
	resolver    PriceResolver
	retrier     *retrier.Retrier
	maxInFlight int
}

// NewAggregator creates an Aggregator. maxInFlight bounds concurrent
// provider fetches and price lookups; values below 1 fall back to the
// default.
func NewAggregator(resolver PriceResolver, r *retrier.Retrier, maxInFlight int) *Aggregator {
	if maxInFlight < 1 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Aggregator{
		resolver:    resolver,
		retrier:     r,
		maxInFlight: maxInFlight,
	}
}

// Build produces the valuation snapshot for the instant. Provider failures
// and price lookups cut off by the run deadline degrade the snapshot with
// warnings; a run fails outright only when no provider produced balances or
// a required price cannot be resolved.
func (a *Aggregator) Build(ctx context.Context, providers []provider.Provider, at domain.PointInTime, fiat domain.Fiat) (domain.Snapshot, error) {
	entries, warnings, succeeded := a.fetchBalances(ctx, providers, at)
	if succeeded == 0 {
		return domain.Snapshot{}, fmt.Errorf("all %d providers failed: %w", len(providers), domain.ErrNoDataAvailable)
	}

	totals := mergeEntries(entries)
	assets := lo.Keys(totals)
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	quotes := a.resolvePrices(ctx, assets, fiat, at)

	var rows []domain.AssetRow
	for _, asset := range assets {
		res := quotes[asset]
		if res.err != nil {
			if truncated(ctx, res.err) {
				slog.Warn("aggregator: price lookup cut off by deadline", "asset", asset)
				warnings = append(warnings, domain.Warning{
					Scope:   domain.WarningPrice,
					Subject: asset.String(),
					Message: "price lookup did not complete before the run deadline",
				})
				continue
			}
			return domain.Snapshot{}, fmt.Errorf("resolving %s/%s: %w", asset, fiat, res.err)
		}
		rows = append(rows, domain.AssetRow{
			Asset:       asset,
			Amount:      totals[asset],
			Price:       res.quote.Price,
			PriceTime:   res.quote.ActualTime,
			PriceSource: res.quote.Source,
			Value:       totals[asset].Mul(res.quote.Price),
			Approximate: res.quote.Approximate(),
		})
	}

	// Descending value, ascending symbol on equal values: completion order
	// of the concurrent stages never leaks into the report.
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Value.Equal(rows[j].Value) {
			return rows[i].Value.GreaterThan(rows[j].Value)
		}
		return rows[i].Asset < rows[j].Asset
	})

	total := lo.Reduce(rows, func(acc decimal.Decimal, row domain.AssetRow, _ int) decimal.Decimal {
		return acc.Add(row.Value)
	}, decimal.Zero)

	return domain.Snapshot{
		ID:        uuid.NewString(),
		TakenAt:   at.Display(),
		Timezone:  at.ZoneName(),
		Fiat:      fiat,
		Rows:      rows,
		Total:     total,
		Warnings:  warnings,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// fetchBalances fans out to all providers with bounded concurrency. Failures
// become warnings; the caller decides whether zero successes is fatal.
func (a *Aggregator) fetchBalances(ctx context.Context, providers []provider.Provider, at domain.PointInTime) ([]domain.BalanceEntry, []domain.Warning, int) {
	var (
		mu        sync.Mutex
		entries   []domain.BalanceEntry
		warnings  []domain.Warning
		succeeded int
	)

	g := new(errgroup.Group)
	g.SetLimit(a.maxInFlight)
	for _, p := range providers {
		g.Go(func() error {
			got, err := retrier.DoWithData(a.retrier, ctx, func(ctx context.Context) ([]domain.BalanceEntry, error) {
				return p.FetchBalances(ctx, at)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("aggregator: provider failed", "provider", p.Name(), "error", err)
				warnings = append(warnings, domain.Warning{
					Scope:   domain.WarningProvider,
					Subject: p.Name(),
					Message: err.Error(),
				})
				return nil
			}
			succeeded++
			entries = append(entries, got...)
			return nil
		})
	}
	g.Wait()

	// Warning order must not depend on goroutine scheduling.
	sort.Slice(warnings, func(i, j int) bool { return warnings[i].Subject < warnings[j].Subject })

	return entries, warnings, succeeded
}

type priceResult struct {
	quote domain.PriceQuote
	err   error
}

// resolvePrices looks up one quote per distinct asset, concurrently. This
// stage cannot start before balances are merged; it is the single ordering
// dependency in the pipeline.
func (a *Aggregator) resolvePrices(ctx context.Context, assets []domain.Asset, fiat domain.Fiat, at domain.PointInTime) map[domain.Asset]priceResult {
	var mu sync.Mutex
	results := make(map[domain.Asset]priceResult, len(assets))

	g := new(errgroup.Group)
	g.SetLimit(a.maxInFlight)
	for _, asset := range assets {
		g.Go(func() error {
			quote, err := a.resolver.Resolve(ctx, asset, fiat, at)

			mu.Lock()
			results[asset] = priceResult{quote: quote, err: err}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// mergeEntries sums amounts per asset. Addition is commutative, so provider
// completion order cannot change the totals. Zero totals are dropped: an
// asset nobody holds needs no price.
func mergeEntries(entries []domain.BalanceEntry) map[domain.Asset]decimal.Decimal {
	totals := make(map[domain.Asset]decimal.Decimal)
	for _, entry := range entries {
		totals[entry.Asset] = totals[entry.Asset].Add(entry.Amount)
	}
	for asset, total := range totals {
		if !total.IsPositive() {
			delete(totals, asset)
		}
	}
	return totals
}

// truncated reports whether a price failure was caused by the run deadline
// rather than the price source.
func truncated(ctx context.Context, err error) bool {
	if errors.Is(err, domain.ErrTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return ctx.Err() != nil
}
