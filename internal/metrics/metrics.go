// Package metrics defines the Prometheus collectors exported by walletboard.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletboard"

// Feed label values.
const (
	FeedTotals     = "totals"
	FeedTopWallets = "top_wallets"
)

// Change kind label values.
const (
	ChangeMembers = "members"
	ChangeValue   = "value"
)

var (
	// OpenScreens is the number of dashboard screens currently attached to a client.
	OpenScreens = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_screens",
		Help:      "Dashboard screens currently open.",
	})

	// TotalsPublished counts deposit totals pushes published by the collector.
	TotalsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "totals_published_total",
		Help:      "Deposit totals pushes published to listeners.",
	})

	// TopWalletChanges counts top wallet changes emitted by the projection.
	TopWalletChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "top_wallet_changes_total",
		Help:      "Top wallet changes emitted, by kind.",
	}, []string{"kind"})

	// DroppedPushes counts pushes or subscribers dropped because a consumer was too slow.
	DroppedPushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_pushes_total",
		Help:      "Pushes dropped because a subscriber buffer was full, by feed.",
	}, []string{"feed"})

	// LedgerCommands counts ledger commands by operation and outcome.
	LedgerCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_commands_total",
		Help:      "Ledger commands handled, by operation and result.",
	}, []string{"op", "result"})
)

// Register adds all collectors to reg. Collectors already registered are ignored.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		OpenScreens,
		TotalsPublished,
		TopWalletChanges,
		DroppedPushes,
		LedgerCommands,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return errors.Wrap(err, "register collector")
		}
	}
	return nil
}
