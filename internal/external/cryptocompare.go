package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/price"
)

// CryptoCompareBaseURL is the min-api endpoint.
const CryptoCompareBaseURL = "https://min-api.cryptocompare.com"

// CryptoCompare serves hourly historical candles. It sits after CoinGecko in
// the default priority order and covers symbols CoinGecko has no id for.
type CryptoCompare struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCryptoCompare creates a CryptoCompare price source.
func NewCryptoCompare(baseURL, apiKey string) *CryptoCompare {
	if baseURL == "" {
		baseURL = CryptoCompareBaseURL
	}
	return &CryptoCompare{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CryptoCompare) Name() string { return "cryptocompare" }

func (c *CryptoCompare) Granularity() time.Duration { return time.Hour }

type cryptoCompareResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64       `json:"time"`
			Close json.Number `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// PricePoints queries /data/v2/histohour with enough candles to cover the
// window, filtering to [from, to].
func (c *CryptoCompare) PricePoints(ctx context.Context, asset domain.Asset, fiat domain.Fiat, from, to time.Time) ([]price.PricePoint, error) {
	limit := int(to.Sub(from)/time.Hour) + 1

	url := fmt.Sprintf("%s/data/v2/histohour?fsym=%s&tsym=%s&toTs=%d&limit=%d",
		c.baseURL, asset, fiat, to.Unix(), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating CryptoCompare request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CryptoCompare request: %w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading CryptoCompare response: %w: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("CryptoCompare HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("CryptoCompare HTTP %d: %w", resp.StatusCode, domain.ErrTransientNetwork)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("CryptoCompare HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload cryptoCompareResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing CryptoCompare response: %w", err)
	}
	if payload.Response == "Error" {
		if strings.Contains(strings.ToLower(payload.Message), "rate limit") {
			return nil, fmt.Errorf("CryptoCompare: %s: %w", payload.Message, domain.ErrRateLimited)
		}
		return nil, fmt.Errorf("CryptoCompare: %s: %w", payload.Message, domain.ErrPriceUnavailable)
	}

	var points []price.PricePoint
	for _, candle := range payload.Data.Data {
		ts := time.Unix(candle.Time, 0).UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		value, err := decimal.NewFromString(candle.Close.String())
		if err != nil {
			return nil, fmt.Errorf("parsing CryptoCompare close %q: %w", candle.Close, err)
		}
		points = append(points, price.PricePoint{Time: ts, Price: value})
	}
	return points, nil
}
