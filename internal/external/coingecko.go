// Package external implements the upstream historical-price APIs behind the
// price.Source interface.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/price"
)

// CoinGeckoBaseURL is the public API v3 endpoint.
const CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// coinGeckoIDs maps canonical symbols to CoinGecko coin ids. Ambiguous
// symbols resolve to the dominant coin, same precedence the original
// mapping used.
var coinGeckoIDs = map[domain.Asset]string{
	"BTC":   "bitcoin",
	"BCH":   "bitcoin-cash",
	"ETH":   "ethereum",
	"KSM":   "kusama",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"XLM":   "stellar",
	"DOGE":  "dogecoin",
	"SOL":   "solana",
	"ADA":   "cardano",
	"ATOM":  "cosmos",
	"LTC":   "litecoin",
	"XMR":   "monero",
	"XRP":   "ripple",
	"XTZ":   "tezos",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
}

// CoinGecko fetches historical prices from the market_chart/range endpoint.
type CoinGecko struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCoinGecko creates a CoinGecko price source. apiKey may be empty for the
// anonymous rate tier.
func NewCoinGecko(baseURL, apiKey string) *CoinGecko {
	if baseURL == "" {
		baseURL = CoinGeckoBaseURL
	}
	return &CoinGecko{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CoinGecko) Name() string { return "coingecko" }

// Granularity follows the market chart resolution for recent ranges.
func (c *CoinGecko) Granularity() time.Duration { return time.Minute }

// PricePoints queries /coins/{id}/market_chart/range for the window.
// Chart timestamps arrive in milliseconds and are normalized here.
func (c *CoinGecko) PricePoints(ctx context.Context, asset domain.Asset, fiat domain.Fiat, from, to time.Time) ([]price.PricePoint, error) {
	id, ok := coinGeckoIDs[asset]
	if !ok {
		return nil, fmt.Errorf("no CoinGecko id for %s: %w", asset, domain.ErrPriceUnavailable)
	}

	url := fmt.Sprintf("%s/coins/%s/market_chart/range?vs_currency=%s&from=%d&to=%d",
		c.baseURL, id, fiat.Lower(), from.Unix(), to.Unix())

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Prices [][]json.Number `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko response: %w", err)
	}

	points := make([]price.PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		if len(pair) != 2 {
			continue
		}
		ms, err := pair[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("parsing CoinGecko timestamp %q: %w", pair[0], err)
		}
		value, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("parsing CoinGecko price %q: %w", pair[1], err)
		}
		points = append(points, price.PricePoint{Time: time.UnixMilli(ms).UTC(), Price: value})
	}
	return points, nil
}

func (c *CoinGecko) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating CoinGecko request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CoinGecko request: %w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading CoinGecko response: %w: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("CoinGecko HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("CoinGecko HTTP %d: %w", resp.StatusCode, domain.ErrAuthenticationFailed)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("CoinGecko HTTP %d: %w", resp.StatusCode, domain.ErrTransientNetwork)
	default:
		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}
}
