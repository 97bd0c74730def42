package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
	"github.com/cryptoshot/cryptoshot/internal/price"
)

// CoinAPIBaseURL is the REST v1 endpoint.
const CoinAPIBaseURL = "https://rest.coinapi.io/v1"

// coinAPINoDataStatus is the status CoinAPI returns when no rate exists for
// the requested pair and time.
const coinAPINoDataStatus = 550

// CoinAPI serves point-in-time exchange rates. Unlike the chart sources it
// returns a single rate per request, stamped with the actual data timestamp,
// so one lookup yields one price point.
type CoinAPI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCoinAPI creates a CoinAPI price source. The key is required by the API
// for every tier.
func NewCoinAPI(baseURL, apiKey string) *CoinAPI {
	if baseURL == "" {
		baseURL = CoinAPIBaseURL
	}
	return &CoinAPI{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CoinAPI) Name() string { return "coinapi" }

func (c *CoinAPI) Granularity() time.Duration { return time.Minute }

type coinAPIRateResponse struct {
	Time time.Time   `json:"time"`
	Rate json.Number `json:"rate"`
}

// PricePoints queries /exchangerate/{asset}/{fiat}?time={to} and returns the
// single rate CoinAPI resolves for that instant.
func (c *CoinAPI) PricePoints(ctx context.Context, asset domain.Asset, fiat domain.Fiat, _, to time.Time) ([]price.PricePoint, error) {
	reqURL := fmt.Sprintf("%s/exchangerate/%s/%s?time=%s",
		c.baseURL, asset, fiat, url.QueryEscape(to.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating CoinAPI request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CoinAPI-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CoinAPI request: %w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading CoinAPI response: %w: %v", domain.ErrTransientNetwork, err)
	}

	switch {
	case resp.StatusCode == coinAPINoDataStatus:
		return nil, fmt.Errorf("CoinAPI has no rate for %s/%s: %w", asset, fiat, domain.ErrPriceUnavailable)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("CoinAPI HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("CoinAPI HTTP %d: %w", resp.StatusCode, domain.ErrAuthenticationFailed)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("CoinAPI HTTP %d: %w", resp.StatusCode, domain.ErrTransientNetwork)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("CoinAPI HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload coinAPIRateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing CoinAPI response: %w", err)
	}

	value, err := decimal.NewFromString(payload.Rate.String())
	if err != nil {
		return nil, fmt.Errorf("parsing CoinAPI rate %q: %w", payload.Rate, err)
	}

	return []price.PricePoint{{Time: payload.Time.UTC(), Price: value}}, nil
}
