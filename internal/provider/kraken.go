package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

const (
	krakenAPIBaseURL  = "https://api.kraken.com"
	krakenLedgersPath = "/0/private/Ledgers"
	krakenMaxPages    = 400
	krakenHTTPTimeout = 30 * time.Second
)

// krakenAssetIDs maps Kraken internal codes to canonical symbols. Codes not
// listed here fall back to stripping the X/Z class prefix.
var krakenAssetIDs = map[string]string{
	"XXBT": "BTC",
	"XBT":  "BTC",
	"XETH": "ETH",
	"XXDG": "DOGE",
	"XXLM": "XLM",
	"XXRP": "XRP",
	"XLTC": "LTC",
	"XXMR": "XMR",
	"ZEUR": "EUR",
	"ZUSD": "USD",
	"ZGBP": "GBP",
	"ZJPY": "JPY",
}

// krakenAssetSuffixes are ledger bookkeeping suffixes for staked and
// yield-bearing positions; balances carrying them belong to the base asset.
var krakenAssetSuffixes = []string{"21.S", "14.S", "07.S", ".S", ".B", ".M", ".F", ".P"}

// Kraken reconstructs an account's as-of balance by replaying its ledger
// history up to the requested instant (declared historical capability:
// replay). This is the only way Kraken exposes past balances; the REST API
// has no balance-at-time endpoint.
type Kraken struct {
	name         string
	apiKey       string
	secret       []byte
	baseURL      string
	httpClient   *http.Client
	ignoreAssets map[domain.Asset]bool

	nonce func() string
}

// NewKraken creates a Kraken provider. privateKey is the base64-encoded API
// secret as issued by Kraken. Assets listed in ignoreAssets (typically fiat
// ledger balances) are excluded from the replayed totals.
func NewKraken(name, apiKey, privateKey string, ignoreAssets []string) (*Kraken, error) {
	secret, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, fmt.Errorf("kraken %s: decoding private key: %w", name, err)
	}

	ignored := make(map[domain.Asset]bool, len(ignoreAssets))
	for _, a := range ignoreAssets {
		ignored[domain.NewAsset(a)] = true
	}

	return &Kraken{
		name:         name,
		apiKey:       apiKey,
		secret:       secret,
		baseURL:      krakenAPIBaseURL,
		httpClient:   &http.Client{Timeout: krakenHTTPTimeout},
		ignoreAssets: ignored,
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixNano(), 10)
		},
	}, nil
}

func (k *Kraken) Name() string { return k.name }

type krakenLedgerEntry struct {
	Asset  string  `json:"asset"`
	Amount string  `json:"amount"`
	Fee    string  `json:"fee"`
	Time   float64 `json:"time"`
}

type krakenLedgersResponse struct {
	Error  []string `json:"error"`
	Result struct {
		Ledger map[string]krakenLedgerEntry `json:"ledger"`
		Count  int                          `json:"count"`
	} `json:"result"`
}

// FetchBalances replays all ledger entries up to the instant and sums
// amounts net of fees per asset.
func (k *Kraken) FetchBalances(ctx context.Context, at domain.PointInTime) ([]domain.BalanceEntry, error) {
	totals := make(map[domain.Asset]decimal.Decimal)

	processed := 0
	for page := 0; page < krakenMaxPages; page++ {
		res, err := k.ledgersPage(ctx, at.Unix(), processed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k.name, err)
		}

		for _, entry := range res.Result.Ledger {
			asset := normalizeKrakenAsset(entry.Asset)
			if k.ignoreAssets[asset] {
				continue
			}
			amount, err := decimal.NewFromString(entry.Amount)
			if err != nil {
				return nil, fmt.Errorf("%s: parsing ledger amount %q: %w", k.name, entry.Amount, err)
			}
			fee := domain.SafeParse(entry.Fee)
			totals[asset] = totals[asset].Add(amount).Sub(fee)
		}

		processed += len(res.Result.Ledger)
		if len(res.Result.Ledger) == 0 || processed >= res.Result.Count {
			break
		}
	}

	entries := make([]domain.BalanceEntry, 0, len(totals))
	for asset, total := range totals {
		if !total.IsPositive() {
			continue
		}
		entry, err := domain.NewBalanceEntry(asset, total, k.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k.name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (k *Kraken) ledgersPage(ctx context.Context, end int64, offset int) (*krakenLedgersResponse, error) {
	form := url.Values{}
	form.Set("nonce", k.nonce())
	form.Set("end", strconv.FormatInt(end, 10))
	form.Set("ofs", strconv.Itoa(offset))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		k.baseURL+krakenLedgersPath, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ledgers request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", k.sign(krakenLedgersPath, form.Get("nonce"), body))

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledgers request: %w: %v", domain.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("ledgers HTTP 429: %w", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("ledgers HTTP %d: %w", resp.StatusCode, domain.ErrTransientNetwork)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ledgers HTTP %d", resp.StatusCode)
	}

	var res krakenLedgersResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding ledgers response: %w", err)
	}
	if len(res.Error) > 0 {
		return nil, mapKrakenError(res.Error)
	}
	return &res, nil
}

// sign produces the API-Sign header: HMAC-SHA512 over the URI path and the
// SHA256 of nonce+postdata, keyed with the decoded secret.
func (k *Kraken) sign(path, nonce, postData string) string {
	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, k.secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func mapKrakenError(apiErrors []string) error {
	for _, e := range apiErrors {
		switch {
		case strings.Contains(e, "Invalid key"), strings.Contains(e, "Invalid signature"),
			strings.Contains(e, "Permission denied"):
			return fmt.Errorf("kraken API: %s: %w", e, domain.ErrAuthenticationFailed)
		case strings.Contains(e, "Rate limit"), strings.Contains(e, "Too many requests"):
			return fmt.Errorf("kraken API: %s: %w", e, domain.ErrRateLimited)
		}
	}
	return fmt.Errorf("kraken API: %s", strings.Join(apiErrors, "; "))
}

func normalizeKrakenAsset(code string) domain.Asset {
	for _, suffix := range krakenAssetSuffixes {
		if trimmed, ok := strings.CutSuffix(code, suffix); ok {
			code = trimmed
			break
		}
	}
	if canonical, ok := krakenAssetIDs[code]; ok {
		return domain.NewAsset(canonical)
	}
	// Four-letter codes with a class prefix (X = crypto, Z = fiat)
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		if canonical, ok := krakenAssetIDs[code[1:]]; ok {
			return domain.NewAsset(canonical)
		}
		return domain.NewAsset(code[1:])
	}
	return domain.NewAsset(code)
}
