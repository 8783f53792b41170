package dashboard

import (
	"fmt"
	"strings"

	"github.com/vadiminshakov/walletboard/internal/chart"
)

const (
	splitPosition = 50.0

	topWalletsChartID = "top-wallets"

	seriesAvailable   = "Available"
	seriesBetted      = "Betted"
	seriesWithdrawing = "Withdrawing"
)

func totalsChartID(currency string) string {
	return "totals-" + strings.ToLower(currency)
}

func totalsSeriesName(currency string) string {
	return fmt.Sprintf("%s deposits", currency)
}

func totalsChart(currency string) chart.Configuration {
	return chart.Configuration{
		ID:    totalsChartID(currency),
		Type:  chart.ChartTypeSpline,
		Title: "Total deposited " + currency,
		XAxis: chart.Axis{
			Type:              chart.AxisTypeDatetime,
			TickPixelInterval: 150,
		},
		YAxis: chart.Axis{
			Type:  chart.AxisTypeLinear,
			Title: "Amount",
			Min:   chart.Min(0),
		},
		Tooltip: false,
		Legend:  chart.Legend{Enabled: false},
		Series:  []string{totalsSeriesName(currency)},
	}
}

func topWalletsChart(categories []string) chart.Configuration {
	if categories == nil {
		categories = []string{}
	}
	return chart.Configuration{
		ID:    topWalletsChartID,
		Type:  chart.ChartTypeBar,
		Title: "Top Wallets",
		XAxis: chart.Axis{
			Type:       chart.AxisTypeCategory,
			Categories: categories,
		},
		YAxis: chart.Axis{
			Type:  chart.AxisTypeLinear,
			Title: "Value (converted to EUR)",
			Min:   chart.Min(0),
		},
		Tooltip: true,
		Legend: chart.Legend{
			Enabled:         true,
			BackgroundColor: "#FFFFFF",
			Reversed:        true,
		},
		Stacking: chart.StackingNormal,
		Series:   []string{seriesAvailable, seriesBetted, seriesWithdrawing},
	}
}

func (s *Screen) layout() LayoutPayload {
	totals := make([]chart.Configuration, 0, len(s.currencies))
	for _, currency := range s.currencies {
		totals = append(totals, totalsChart(currency))
	}
	return LayoutPayload{
		SplitPosition: splitPosition,
		Totals:        totals,
		TopWallets:    topWalletsChart(s.categories),
	}
}
