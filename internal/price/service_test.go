package price

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/retrier"
)

type fakeSource struct {
	name        string
	granularity time.Duration
	points      []PricePoint
	err         error
	calls       atomic.Int64
}

func (f *fakeSource) Name() string               { return f.name }
func (f *fakeSource) Granularity() time.Duration { return f.granularity }

func (f *fakeSource) PricePoints(_ context.Context, _ domain.Asset, _ domain.Fiat, _, _ time.Time) ([]PricePoint, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

func testRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithMaxRetries(1), retrier.WithInitialInterval(time.Millisecond))
}

func at(t *testing.T) domain.PointInTime {
	t.Helper()
	return domain.NewPointInTime(time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC), time.UTC)
}

func TestResolveExactPoint(t *testing.T) {
	instant := at(t)
	src := &fakeSource{
		name:        "coingecko",
		granularity: time.Minute,
		points: []PricePoint{
			{Time: instant.UTC().Add(-30 * time.Minute), Price: decimal.NewFromInt(59000)},
			{Time: instant.UTC(), Price: decimal.NewFromInt(60000)},
		},
	}
	svc := NewService([]Source{src}, NewMemoryCache(), DefaultTolerance, testRetrier())

	quote, err := svc.Resolve(context.Background(), "BTC", "USD", instant)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !quote.Price.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("price = %s, want 60000", quote.Price)
	}
	if quote.Approximate() {
		t.Error("exact-instant quote flagged approximate")
	}
}

func TestResolveCachesSecondLookup(t *testing.T) {
	instant := at(t)
	src := &fakeSource{
		name:        "coingecko",
		granularity: time.Minute,
		points:      []PricePoint{{Time: instant.UTC(), Price: decimal.NewFromInt(60000)}},
	}
	svc := NewService([]Source{src}, NewMemoryCache(), DefaultTolerance, testRetrier())

	first, err := svc.Resolve(context.Background(), "BTC", "USD", instant)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := svc.Resolve(context.Background(), "BTC", "USD", instant)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if first != second {
		t.Errorf("cached quote differs: %+v vs %+v", first, second)
	}
}

func TestResolveFallbackDisclosesActualTime(t *testing.T) {
	instant := at(t)
	earlier := instant.UTC().Add(-10 * time.Minute)
	src := &fakeSource{
		name:        "coingecko",
		granularity: time.Minute,
		points:      []PricePoint{{Time: earlier, Price: decimal.NewFromInt(3000)}},
	}
	svc := NewService([]Source{src}, NewMemoryCache(), DefaultTolerance, testRetrier())

	quote, err := svc.Resolve(context.Background(), "ETH", "USD", instant)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !quote.ActualTime.Equal(earlier) {
		t.Errorf("ActualTime = %v, want %v", quote.ActualTime, earlier)
	}
	if !quote.Approximate() {
		t.Error("fallback quote not flagged approximate")
	}
}

func TestResolveNothingWithinTolerance(t *testing.T) {
	instant := at(t)
	src := &fakeSource{
		name:        "coingecko",
		granularity: time.Minute,
		points:      []PricePoint{{Time: instant.UTC().Add(-2 * time.Hour), Price: decimal.NewFromInt(1)}},
	}
	svc := NewService([]Source{src}, NewMemoryCache(), time.Hour, testRetrier())

	_, err := svc.Resolve(context.Background(), "BTC", "USD", instant)
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestResolvePriorityChainFallsThrough(t *testing.T) {
	instant := at(t)
	primary := &fakeSource{
		name:        "coingecko",
		granularity: time.Minute,
		err:         fmt.Errorf("no id for asset: %w", domain.ErrPriceUnavailable),
	}
	secondary := &fakeSource{
		name:        "cryptocompare",
		granularity: time.Hour,
		points:      []PricePoint{{Time: instant.UTC(), Price: decimal.NewFromInt(42)}},
	}
	svc := NewService([]Source{primary, secondary}, NewMemoryCache(), DefaultTolerance, testRetrier())

	quote, err := svc.Resolve(context.Background(), "OBSCURE", "USD", instant)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if quote.Source != "cryptocompare" {
		t.Errorf("source = %q, want cryptocompare", quote.Source)
	}
}

func TestResolveCancelledContextWrapsTimeout(t *testing.T) {
	instant := at(t)
	src := &fakeSource{name: "coingecko", granularity: time.Minute, err: context.Canceled}
	svc := NewService([]Source{src}, NewMemoryCache(), DefaultTolerance, testRetrier())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Resolve(ctx, "BTC", "USD", instant)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestFlightKeySharedWithinBucket(t *testing.T) {
	base := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	svc := NewService([]Source{
		&fakeSource{name: "coingecko", granularity: time.Minute},
		&fakeSource{name: "cryptocompare", granularity: time.Hour},
	}, NewMemoryCache(), DefaultTolerance, testRetrier())

	a := svc.flightKey("BTC", "USD", domain.NewPointInTime(base.Add(5*time.Second), time.UTC))
	b := svc.flightKey("BTC", "USD", domain.NewPointInTime(base.Add(40*time.Second), time.UTC))
	if a != b {
		t.Errorf("instants in the same buckets got different keys: %q vs %q", a, b)
	}

	c := svc.flightKey("BTC", "USD", domain.NewPointInTime(base.Add(90*time.Second), time.UTC))
	if a == c {
		t.Error("instants in different minute buckets share a key")
	}

	d := svc.flightKey("ETH", "USD", domain.NewPointInTime(base.Add(5*time.Second), time.UTC))
	if a == d {
		t.Error("different assets share a key")
	}
}

func TestPickNearestTieBreaksEarlier(t *testing.T) {
	instant := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	earlier := PricePoint{Time: instant.Add(-5 * time.Minute), Price: decimal.NewFromInt(1)}
	later := PricePoint{Time: instant.Add(5 * time.Minute), Price: decimal.NewFromInt(2)}

	got, ok := pickNearest([]PricePoint{later, earlier}, instant, time.Hour)
	if !ok {
		t.Fatal("expected a pick")
	}
	if !got.Time.Equal(earlier.Time) {
		t.Errorf("picked %v, want the earlier point %v", got.Time, earlier.Time)
	}
}

func TestPickNearestNeverUsesFuturePoints(t *testing.T) {
	instant := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	points := []PricePoint{
		{Time: instant.Add(time.Minute), Price: decimal.NewFromInt(2)},
		{Time: instant.Add(-30 * time.Minute), Price: decimal.NewFromInt(1)},
	}

	got, ok := pickNearest(points, instant, time.Hour)
	if !ok {
		t.Fatal("expected a pick")
	}
	if !got.Price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("picked the future point %s", got.Price)
	}

	// Only future points available: no pick at all.
	if _, ok := pickNearest(points[:1], instant, time.Hour); ok {
		t.Error("picked a point when only future data exists")
	}
}
