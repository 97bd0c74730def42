package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/price"
)

// KrakenBaseURL is the public market-data endpoint.
const KrakenBaseURL = "https://api.kraken.com"

const (
	krakenTradesPath = "/0/public/Trades"
	// krakenTradeStep is how far the search window slides back per attempt
	// when no usable trade is found.
	krakenTradeStep = time.Minute
	// krakenTradeLookback caps the total slide before giving up on the pair.
	krakenTradeLookback = time.Hour
)

// krakenPairSymbols maps canonical symbols to the codes Kraken pair names
// use where they differ.
var krakenPairSymbols = map[domain.Asset]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

// KrakenTrades derives prices from the public trade tape: the latest market
// order at or before the instant is the price. No API key needed. Windows of
// one minute are slid back from the instant until a market trade appears.
type KrakenTrades struct {
	baseURL    string
	httpClient *http.Client
}

// NewKrakenTrades creates a Kraken trade-search price source.
func NewKrakenTrades(baseURL string) *KrakenTrades {
	if baseURL == "" {
		baseURL = KrakenBaseURL
	}
	return &KrakenTrades{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (k *KrakenTrades) Name() string { return "kraken" }

func (k *KrakenTrades) Granularity() time.Duration { return time.Minute }

// PricePoints searches the trade tape backwards from the instant, one step
// per request, and returns the market trades of the first window that has
// any.
func (k *KrakenTrades) PricePoints(ctx context.Context, asset domain.Asset, fiat domain.Fiat, from, to time.Time) ([]price.PricePoint, error) {
	pair := krakenPairName(asset, fiat)

	floor := from
	if f := to.Add(-krakenTradeLookback); f.After(floor) {
		floor = f
	}

	for since := to.Add(-krakenTradeStep); ; since = since.Add(-krakenTradeStep) {
		if since.Before(floor) {
			since = floor
		}

		points, err := k.tradesWindow(ctx, pair, since, to)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			return points, nil
		}
		if !since.After(floor) {
			break
		}
	}

	return nil, fmt.Errorf("no market trades for %s between %s and %s: %w",
		pair, floor.Format(time.RFC3339), to.Format(time.RFC3339), domain.ErrPriceUnavailable)
}

type krakenTradesResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// tradesWindow fetches trades since the window start and keeps market orders
// up to the instant. Limit orders are skipped: only market trades track the
// market price.
func (k *KrakenTrades) tradesWindow(ctx context.Context, pair string, since, to time.Time) ([]price.PricePoint, error) {
	url := fmt.Sprintf("%s%s?pair=%s&since=%d", k.baseURL, krakenTradesPath, pair, since.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Kraken trades request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Kraken trades request: %w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Kraken trades response: %w: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("Kraken HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("Kraken HTTP %d: %w", resp.StatusCode, domain.ErrTransientNetwork)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("Kraken HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload krakenTradesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing Kraken trades response: %w", err)
	}
	if len(payload.Error) > 0 {
		return nil, mapKrakenTradesError(payload.Error)
	}

	var trades [][]any
	for key, raw := range payload.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &trades); err != nil {
			return nil, fmt.Errorf("parsing Kraken trades for %s: %w", key, err)
		}
		break
	}

	var points []price.PricePoint
	for _, trade := range trades {
		// [price, volume, time, buy/sell, market/limit, misc, id]
		if len(trade) < 5 {
			continue
		}
		priceStr, ok := trade[0].(string)
		if !ok {
			continue
		}
		ts, ok := trade[2].(float64)
		if !ok {
			continue
		}
		orderType, ok := trade[4].(string)
		if !ok || orderType != "m" {
			continue
		}

		sec, frac := math.Modf(ts)
		tradeTime := time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
		if tradeTime.After(to) {
			// The tape is chronological; everything after is future.
			break
		}

		value, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parsing Kraken trade price %q: %w", priceStr, err)
		}
		points = append(points, price.PricePoint{Time: tradeTime, Price: value})
	}
	return points, nil
}

func mapKrakenTradesError(apiErrors []string) error {
	for _, e := range apiErrors {
		switch {
		case strings.Contains(e, "Rate limit"), strings.Contains(e, "Too many requests"):
			return fmt.Errorf("kraken API: %s: %w", e, domain.ErrRateLimited)
		case strings.Contains(e, "Unknown asset pair"):
			return fmt.Errorf("kraken API: %s: %w", e, domain.ErrPriceUnavailable)
		}
	}
	return fmt.Errorf("kraken API: %s", strings.Join(apiErrors, "; "))
}

func krakenPairName(asset domain.Asset, fiat domain.Fiat) string {
	base := asset.String()
	if mapped, ok := krakenPairSymbols[asset]; ok {
		base = mapped
	}
	return base + fiat.String()
}
