package domain

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Asset identifies a fungible cryptocurrency by its canonical symbol.
// Symbols are upper-cased on construction so that "btc", "Btc" and "BTC"
// refer to the same asset within a run.
type Asset string

// NewAsset creates an Asset from a raw symbol string.
func NewAsset(symbol string) Asset {
	return Asset(strings.ToUpper(strings.TrimSpace(symbol)))
}

func (a Asset) String() string { return string(a) }

// Fiat is the valuation target currency. Exactly one is active per run.
type Fiat string

// NewFiat validates the code against the go-money currency registry.
func NewFiat(code string) (Fiat, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("unknown fiat currency %q", code)
	}
	return Fiat(code), nil
}

func (f Fiat) String() string { return string(f) }

// Lower returns the code in the lower-case form most price APIs expect.
func (f Fiat) Lower() string { return strings.ToLower(string(f)) }

// Format renders a value using the currency's minor-unit and symbol
// conventions, e.g. "$51,000.00" for USD.
func (f Fiat) Format(v decimal.Decimal) string {
	c := money.GetCurrency(string(f))
	if c == nil {
		return v.StringFixed(2) + " " + string(f)
	}
	minor := v.Shift(int32(c.Fraction)).Round(0)
	return money.New(minor.IntPart(), string(f)).Display()
}
