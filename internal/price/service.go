package price

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/retrier"
)

// DefaultTolerance bounds how far back the resolver may fall from the
// requested instant, matching the original look-back window.
const DefaultTolerance = time.Hour

// Service resolves historical price quotes with caching and
// nearest-earlier fallback. The cache is injected at construction so test
// suites can substitute a deterministic one.
type Service struct {
	sources   []Source
	cache     Cache
	tolerance time.Duration
	retrier   *retrier.Retrier
	group     singleflight.Group
}

// NewService creates a price resolver over sources in priority order.
func NewService(sources []Source, cache Cache, tolerance time.Duration, r *retrier.Retrier) *Service {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Service{
		sources:   sources,
		cache:     cache,
		tolerance: tolerance,
		retrier:   r,
	}
}

// Resolve maps (asset, fiat, instant) to a quote. On a cache miss it queries
// each source's look-back window ending at the instant and picks the latest
// point at or before it; concurrent lookups for the same triple are
// collapsed into one upstream call.
func (s *Service) Resolve(ctx context.Context, asset domain.Asset, fiat domain.Fiat, at domain.PointInTime) (domain.PriceQuote, error) {
	for _, src := range s.sources {
		key := cacheKey(asset, fiat, src.Name(), at.Truncate(src.Granularity()).UTC())
		if quote, ok := s.cache.Get(key); ok {
			return quote, nil
		}
	}

	v, err, _ := s.group.Do(s.flightKey(asset, fiat, at), func() (any, error) {
		return s.lookup(ctx, asset, fiat, at)
	})
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return v.(domain.PriceQuote), nil
}

// flightKey dedupes in-flight lookups at the same granularity as the cache:
// instants landing in the same bucket for every source share one upstream
// call.
func (s *Service) flightKey(asset domain.Asset, fiat domain.Fiat, at domain.PointInTime) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=>%s", asset, fiat)
	for _, src := range s.sources {
		fmt.Fprintf(&b, ":%d", at.Truncate(src.Granularity()).Unix())
	}
	return b.String()
}

func (s *Service) lookup(ctx context.Context, asset domain.Asset, fiat domain.Fiat, at domain.PointInTime) (domain.PriceQuote, error) {
	from := at.UTC().Add(-s.tolerance)

	var lastErr error
	for _, src := range s.sources {
		points, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) ([]PricePoint, error) {
			return src.PricePoints(ctx, asset, fiat, from, at.UTC())
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.PriceQuote{}, fmt.Errorf("%s/%s at %s: %w: %v",
					asset, fiat, at, domain.ErrTimeout, err)
			}
			slog.Warn("price: source lookup failed", "source", src.Name(), "asset", asset, "error", err)
			lastErr = err
			continue
		}

		point, ok := pickNearest(points, at.UTC(), s.tolerance)
		if !ok {
			slog.Warn("price: no data point within tolerance", "source", src.Name(), "asset", asset, "at", at)
			continue
		}

		quote := domain.PriceQuote{
			Asset:      asset,
			Fiat:       fiat,
			Requested:  at,
			ActualTime: point.Time,
			Price:      point.Price,
			Source:     src.Name(),
		}
		key := cacheKey(asset, fiat, src.Name(), at.Truncate(src.Granularity()).UTC())
		s.cache.Set(key, quote)
		return quote, nil
	}

	if lastErr != nil {
		return domain.PriceQuote{}, fmt.Errorf("%s/%s at %s: %w (last source error: %v)",
			asset, fiat, at, domain.ErrPriceUnavailable, lastErr)
	}
	return domain.PriceQuote{}, fmt.Errorf("%s/%s at %s: %w", asset, fiat, at, domain.ErrPriceUnavailable)
}

// pickNearest returns the latest point at or before the instant, within
// tolerance. Later points are never considered, even when closer: a price
// from the future was not knowable at the instant, so an equidistant pair
// always resolves to the earlier point.
func pickNearest(points []PricePoint, at time.Time, tolerance time.Duration) (PricePoint, bool) {
	var best PricePoint
	found := false
	for _, p := range points {
		if p.Time.After(at) {
			continue
		}
		if at.Sub(p.Time) > tolerance {
			continue
		}
		if !found || p.Time.After(best.Time) {
			best = p
			found = true
		}
	}
	return best, found
}
