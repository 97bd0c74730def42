package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const amountPrecision = 8

// SafeParse parses a string into a decimal, returning zero for invalid or
// empty input.
func SafeParse(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatAmount rounds to 8 decimal places and strips trailing zeros.
func FormatAmount(d decimal.Decimal) string {
	rounded := d.Round(amountPrecision)
	s := rounded.StringFixed(amountPrecision)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
