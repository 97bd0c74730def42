package external

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

func TestCryptoComparePricePoints(t *testing.T) {
	to := time.Date(2024, 4, 15, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/v2/histohour" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("fsym") != "ETH" || q.Get("tsym") != "USD" {
			t.Errorf("fsym/tsym = %q/%q", q.Get("fsym"), q.Get("tsym"))
		}
		fmt.Fprintf(w, `{"Response":"Success","Data":{"Data":[
			{"time":%d,"close":2990.1},
			{"time":%d,"close":3000}
		]}}`, to.Add(-2*time.Hour).Unix(), to.Unix())
	}))
	defer srv.Close()

	cc := NewCryptoCompare(srv.URL, "")
	points, err := cc.PricePoints(context.Background(), "ETH", "USD", to.Add(-time.Hour), to)
	if err != nil {
		t.Fatalf("PricePoints: %v", err)
	}
	// The candle two hours back falls outside the window and is dropped.
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if !points[0].Price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("price = %s", points[0].Price)
	}
}

func TestCryptoCompareErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"There is no data for the symbol NOCOIN"}`)
	}))
	defer srv.Close()

	cc := NewCryptoCompare(srv.URL, "")
	_, err := cc.PricePoints(context.Background(), "NOCOIN", "USD", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable", err)
	}
}
