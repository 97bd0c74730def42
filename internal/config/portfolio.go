package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"
)

// Provider kinds accepted in the portfolio descriptor.
const (
	KindManual  = "manual"
	KindKraken  = "kraken"
	KindBinance = "binance"
	KindEVM     = "evm"
)

// TokenRef describes one ERC-20 token to read from an on-chain address.
type TokenRef struct {
	Symbol   string `json:"symbol"`
	Contract string `json:"contract"`
	Decimals int32  `json:"decimals"`
}

// ProviderEntry describes one balance source in the portfolio descriptor.
// Which fields are required depends on Kind.
type ProviderEntry struct {
	Name         string            `json:"name"`
	Kind         string            `json:"kind"`
	APIKey       string            `json:"apiKey,omitempty"`
	APISecret    string            `json:"apiSecret,omitempty"`
	RPCURL       string            `json:"rpcUrl,omitempty"`
	Address      string            `json:"address,omitempty"`
	NativeAsset  string            `json:"nativeAsset,omitempty"`
	Holdings     map[string]string `json:"holdings,omitempty"`
	Tokens       []TokenRef        `json:"tokens,omitempty"`
	IgnoreAssets []string          `json:"ignoreAssets,omitempty"`
}

// Portfolio is the JSON descriptor of what to value and where balances live.
type Portfolio struct {
	Fiat            string          `json:"fiat"`
	PriceSources    []string        `json:"priceSources,omitempty"`
	TimestampLayout string          `json:"timestampLayout,omitempty"`
	Providers       []ProviderEntry `json:"providers"`
}

// LoadPortfolio reads and validates the descriptor at path.
func LoadPortfolio(path string) (Portfolio, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Portfolio{}, fmt.Errorf("reading portfolio %s: %w", path, err)
	}

	var p Portfolio
	if err := json.Unmarshal(raw, &p); err != nil {
		return Portfolio{}, fmt.Errorf("parsing portfolio %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return Portfolio{}, fmt.Errorf("invalid portfolio %s: %w", path, err)
	}
	return p, nil
}

func (p Portfolio) validate() error {
	if p.Fiat == "" {
		return fmt.Errorf("fiat is required")
	}
	if len(p.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	names := lo.CountValuesBy(p.Providers, func(e ProviderEntry) string { return e.Name })
	for _, entry := range p.Providers {
		if entry.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if names[entry.Name] > 1 {
			return fmt.Errorf("duplicate provider name %q", entry.Name)
		}
		if err := entry.validate(); err != nil {
			return fmt.Errorf("provider %q: %w", entry.Name, err)
		}
	}
	return nil
}

func (e ProviderEntry) validate() error {
	switch e.Kind {
	case KindManual:
		if len(e.Holdings) == 0 {
			return fmt.Errorf("manual provider needs holdings")
		}
	case KindKraken:
		if e.APIKey == "" || e.APISecret == "" {
			return fmt.Errorf("kraken provider needs apiKey and apiSecret")
		}
	case KindBinance:
		if e.APIKey == "" || e.APISecret == "" {
			return fmt.Errorf("binance provider needs apiKey and apiSecret")
		}
	case KindEVM:
		if e.RPCURL == "" || e.Address == "" {
			return fmt.Errorf("evm provider needs rpcUrl and address")
		}
	default:
		return fmt.Errorf("unknown provider kind %q", e.Kind)
	}
	return nil
}
