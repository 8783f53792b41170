// Package projection maintains read models derived from ledger changes.
package projection

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
)

// DefaultTopSize is the ranking size used when none is configured.
const DefaultTopSize = 10

// ErrUnknownRate is returned for a wallet currency without a conversion rate.
var ErrUnknownRate = errors.New("no conversion rate for currency")

type changeEmitter interface {
	Emit(change domain.TopWalletsChange)
}

// TopWallets ranks wallets by their total value in the reporting currency
// and emits changes to the ranking.
type TopWallets struct {
	logger  *zap.Logger
	size    int
	rates   map[string]decimal.Decimal
	emitter changeEmitter

	mu      sync.Mutex
	wallets map[string]domain.TopWalletSummary
	top     []domain.TopWalletSummary
}

// NewTopWallets creates the projection. rates maps a currency to its value in the reporting currency.
func NewTopWallets(logger *zap.Logger, size int, rates map[string]decimal.Decimal, emitter changeEmitter) *TopWallets {
	if size < 1 {
		size = DefaultTopSize
	}
	normalized := make(map[string]decimal.Decimal, len(rates))
	for currency, rate := range rates {
		normalized[domain.NormalizeCurrency(currency)] = rate
	}
	return &TopWallets{
		logger:  logger,
		size:    size,
		rates:   normalized,
		emitter: emitter,
		wallets: make(map[string]domain.TopWalletSummary),
	}
}

// ReadTop calls fn with the current ranking. No change is emitted while fn runs.
func (p *TopWallets) ReadTop(fn func(top []domain.TopWalletSummary)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.top)
}

// Top returns a copy of the current ranking.
func (p *TopWallets) Top() []domain.TopWalletSummary {
	var out []domain.TopWalletSummary
	p.ReadTop(func(top []domain.TopWalletSummary) {
		out = make([]domain.TopWalletSummary, len(top))
		copy(out, top)
	})
	return out
}

// OnWalletSummary applies a wallet summary change and emits the resulting ranking change, if any.
func (p *TopWallets) OnWalletSummary(summary domain.WalletSummary) error {
	converted, err := p.convert(summary)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.wallets[converted.WalletID] = converted
	next := p.rank()
	change := diff(p.top, next, converted.WalletID)
	p.top = next

	if change == nil {
		return nil
	}
	if p.emitter != nil {
		// emitted under the lock so subscribers observe changes in ranking order
		p.emitter.Emit(change)
	}
	switch change.(type) {
	case domain.TopWalletsMemberChange:
		metrics.TopWalletChanges.WithLabelValues(metrics.ChangeMembers).Inc()
	case domain.TopWalletsValueChange:
		metrics.TopWalletChanges.WithLabelValues(metrics.ChangeValue).Inc()
	}
	return nil
}

func (p *TopWallets) convert(s domain.WalletSummary) (domain.TopWalletSummary, error) {
	currency := domain.NormalizeCurrency(s.Currency)
	rate, ok := p.rates[currency]
	if !ok {
		return domain.TopWalletSummary{}, errors.Wrapf(ErrUnknownRate, "wallet %s: %s", s.WalletID, currency)
	}
	return domain.TopWalletSummary{
		WalletID:    s.WalletID,
		Available:   s.Available.Mul(rate).Round(2),
		Betted:      s.Betted.Mul(rate).Round(2),
		Withdrawing: s.Withdrawing.Mul(rate).Round(2),
	}, nil
}

// rank returns the top wallets by total value, ties broken by wallet id.
func (p *TopWallets) rank() []domain.TopWalletSummary {
	all := make([]domain.TopWalletSummary, 0, len(p.wallets))
	for _, w := range p.wallets {
		all = append(all, w)
	}
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].Total(), all[j].Total()
		if !ti.Equal(tj) {
			return ti.GreaterThan(tj)
		}
		return all[i].WalletID < all[j].WalletID
	})
	if len(all) > p.size {
		all = all[:p.size]
	}
	return all
}

// diff compares two rankings after walletID changed.
func diff(prev, next []domain.TopWalletSummary, walletID string) domain.TopWalletsChange {
	if !sameMembers(prev, next) {
		summaries := make([]domain.TopWalletSummary, len(next))
		copy(summaries, next)
		return domain.TopWalletsMemberChange{Summaries: summaries}
	}
	for pos, s := range next {
		if s.WalletID != walletID {
			continue
		}
		if s.Equal(prev[pos]) {
			return nil
		}
		return domain.TopWalletsValueChange{Position: pos, Summary: s}
	}
	return nil
}

func sameMembers(a, b []domain.TopWalletSummary) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].WalletID != b[i].WalletID {
			return false
		}
	}
	return true
}
