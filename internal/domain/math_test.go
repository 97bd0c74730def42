package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSafeParse(t *testing.T) {
	if !SafeParse("").IsZero() {
		t.Error("SafeParse(\"\") should be zero")
	}
	if !SafeParse("garbage").IsZero() {
		t.Error("SafeParse(garbage) should be zero")
	}
	if got := SafeParse("0.75"); !got.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("SafeParse(0.75) = %s", got)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0.500000000", "0.5"},
		{"2", "2"},
		{"0.123456789", "0.12345679"},
		{"45000.00", "45000"},
	}
	for _, c := range cases {
		if got := FormatAmount(decimal.RequireFromString(c.in)); got != c.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPriceQuoteApproximate(t *testing.T) {
	at := NewPointInTime(time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC), time.UTC)

	exact := PriceQuote{Asset: "BTC", Fiat: "USD", Requested: at, ActualTime: at.UTC()}
	if exact.Approximate() {
		t.Error("quote at the requested instant should not be approximate")
	}

	fallback := PriceQuote{Asset: "ETH", Fiat: "USD", Requested: at, ActualTime: at.UTC().Add(-10 * time.Minute)}
	if !fallback.Approximate() {
		t.Error("quote from an earlier data point should be approximate")
	}
}
