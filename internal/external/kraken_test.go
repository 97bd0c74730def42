package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

func TestKrakenTradesStepsBackUntilTradesFound(t *testing.T) {
	to := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/0/public/Trades" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("pair"); got != "XBTUSD" {
			t.Errorf("pair = %q, want XBTUSD", got)
		}
		since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		if err != nil {
			t.Fatalf("since parameter: %v", err)
		}

		// The minute right before the instant has no trades; the window one
		// step back has a limit order, a market order, and a future trade.
		if since >= to.Add(-time.Minute).Unix() {
			fmt.Fprint(w, `{"error":[],"result":{"XXBTZUSD":[],"last":"0"}}`)
			return
		}
		fmt.Fprintf(w, `{"error":[],"result":{"XXBTZUSD":[
			["59800.0","0.1",%d,"b","l","",1],
			["59900.1","0.2",%d.5,"s","m","",2],
			["60100.0","0.3",%d,"b","m","",3]
		],"last":"0"}}`,
			to.Add(-110*time.Second).Unix(),
			to.Add(-100*time.Second).Unix(),
			to.Add(30*time.Second).Unix())
	}))
	defer srv.Close()

	kt := NewKrakenTrades(srv.URL)
	points, err := kt.PricePoints(context.Background(), "BTC", "USD", to.Add(-time.Hour), to)
	if err != nil {
		t.Fatalf("PricePoints: %v", err)
	}

	if requests != 2 {
		t.Errorf("made %d requests, want 2", requests)
	}
	// Only the market order at or before the instant survives.
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if !points[0].Price.Equal(decimal.RequireFromString("59900.1")) {
		t.Errorf("price = %s", points[0].Price)
	}
	if points[0].Time.After(to) {
		t.Errorf("point time %v is after the instant", points[0].Time)
	}
}

func TestKrakenTradesExhaustsWindow(t *testing.T) {
	to := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":[],"result":{"XXBTZUSD":[],"last":"0"}}`)
	}))
	defer srv.Close()

	kt := NewKrakenTrades(srv.URL)
	_, err := kt.PricePoints(context.Background(), "BTC", "USD", to.Add(-2*time.Minute), to)
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestKrakenTradesUnknownPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EQuery:Unknown asset pair"],"result":{}}`)
	}))
	defer srv.Close()

	kt := NewKrakenTrades(srv.URL)
	_, err := kt.PricePoints(context.Background(), "NOCOIN", "USD", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestKrakenTradesRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":["EGeneral:Too many requests"],"result":{}}`)
	}))
	defer srv.Close()

	kt := NewKrakenTrades(srv.URL)
	_, err := kt.PricePoints(context.Background(), "BTC", "USD", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}

func TestKrakenPairName(t *testing.T) {
	cases := []struct {
		asset domain.Asset
		fiat  domain.Fiat
		want  string
	}{
		{"BTC", "USD", "XBTUSD"},
		{"DOGE", "EUR", "XDGEUR"},
		{"ETH", "USD", "ETHUSD"},
	}
	for _, tc := range cases {
		if got := krakenPairName(tc.asset, tc.fiat); got != tc.want {
			t.Errorf("krakenPairName(%s, %s) = %q, want %q", tc.asset, tc.fiat, got, tc.want)
		}
	}
}
