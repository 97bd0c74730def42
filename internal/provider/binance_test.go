package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

func TestBinanceRejectsHistoricalInstant(t *testing.T) {
	b := NewBinance("binance-spot", "key", "secret", 5*time.Minute)
	now := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	_, err := b.FetchBalances(context.Background(),
		domain.NewPointInTime(now.Add(-time.Hour), time.UTC))
	if !errors.Is(err, domain.ErrUnsupportedTimeRange) {
		t.Errorf("err = %v, want ErrUnsupportedTimeRange", err)
	}

	_, err = b.FetchBalances(context.Background(),
		domain.NewPointInTime(now.Add(time.Hour), time.UTC))
	if !errors.Is(err, domain.ErrUnsupportedTimeRange) {
		t.Errorf("future instant: err = %v, want ErrUnsupportedTimeRange", err)
	}
}

func TestMapBinanceError(t *testing.T) {
	if got := mapBinanceError(errors.New("dial tcp: connection refused")); !errors.Is(got, domain.ErrTransientNetwork) {
		t.Errorf("transport error mapped to %v", got)
	}
}
