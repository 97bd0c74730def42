package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetRow is one line of the valuation report: the merged holding of a
// single asset priced in the run's fiat currency.
type AssetRow struct {
	Asset       Asset           `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	PriceTime   time.Time       `json:"priceTime"`
	PriceSource string          `json:"priceSource"`
	Value       decimal.Decimal `json:"value"`
	// Approximate is set when the price came from a fallback data point
	// rather than the requested instant.
	Approximate bool `json:"approximate"`
}

// WarningScope classifies what a snapshot warning refers to.
type WarningScope string

const (
	WarningProvider WarningScope = "provider"
	WarningPrice    WarningScope = "price"
)

// Warning records a non-fatal failure that degraded the snapshot.
type Warning struct {
	Scope   WarningScope `json:"scope"`
	Subject string       `json:"subject"`
	Message string       `json:"message"`
}

// Snapshot is the complete valuation report for one run. Created once by the
// aggregator and read-only afterward; field names are stable for any
// renderer or store that consumes it.
type Snapshot struct {
	ID       string          `json:"id"`
	TakenAt  time.Time       `json:"takenAt"`
	Timezone string          `json:"timezone"`
	Fiat     Fiat            `json:"fiat"`
	Rows     []AssetRow      `json:"rows"`
	Total    decimal.Decimal `json:"total"`
	Warnings []Warning       `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
