package dashboard

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletboard/internal/chart"
)

// FrameKind names a chart state mutation streamed to the renderer.
type FrameKind string

const (
	FrameLayout      FrameKind = "layout"
	FrameTotalsPoint FrameKind = "totals_point"
	FrameTopMembers  FrameKind = "top_members"
	FrameTopValue    FrameKind = "top_value"
)

// Frame is one chart state mutation. Payload is one of the *Payload types below.
type Frame struct {
	Kind    FrameKind
	Payload any
}

// LayoutPayload describes the two chart regions and their charts.
type LayoutPayload struct {
	SplitPosition float64               `json:"split_position"`
	Totals        []chart.Configuration `json:"totals"`
	TopWallets    chart.Configuration   `json:"top_wallets"`
}

// TotalsPointPayload appends a point to a currency's deposit series.
// Shift is set when the oldest point was dropped.
type TotalsPointPayload struct {
	ChartID  string           `json:"chart_id"`
	Currency string           `json:"currency"`
	Point    chart.Point      `json:"point"`
	Shift    bool             `json:"shift"`
	Trend    *decimal.Decimal `json:"trend,omitempty"`
}

// TopMembersPayload replaces the top wallets categories and all three series.
type TopMembersPayload struct {
	Categories  []string          `json:"categories"`
	Available   []decimal.Decimal `json:"available"`
	Betted      []decimal.Decimal `json:"betted"`
	Withdrawing []decimal.Decimal `json:"withdrawing"`
}

// TopValuePayload updates one position in each of the three top wallets series.
type TopValuePayload struct {
	Position    int             `json:"position"`
	Available   decimal.Decimal `json:"available"`
	Betted      decimal.Decimal `json:"betted"`
	Withdrawing decimal.Decimal `json:"withdrawing"`
}
