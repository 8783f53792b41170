// Package domain defines core data structures shared by the ledger, the
// management collectors and the dashboard.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TotalDeposited is the deposit total for one currency at a point in time.
type TotalDeposited struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewTotalDeposited creates a new TotalDeposited with a normalized currency code.
func NewTotalDeposited(currency string, amount decimal.Decimal) TotalDeposited {
	return TotalDeposited{
		Currency: NormalizeCurrency(currency),
		Amount:   amount,
	}
}

// DepositTotals is one push of per-currency deposit totals.
type DepositTotals struct {
	Timestamp time.Time        `json:"ts"`
	Totals    []TotalDeposited `json:"totals"`
}

// DepositTotalsRecord bundles persisted deposit totals with their log index.
type DepositTotalsRecord struct {
	Index  uint64
	Totals DepositTotals
}

// NormalizeCurrency returns the upper-case ISO code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
