// Package ledger is the in-memory write side for wallets: deposits, bets and withdrawals.
package ledger

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// SummaryListener is notified after every successful wallet mutation.
// The mutation is already committed when a listener runs; a listener error
// reaches the caller as a *ListenerError.
type SummaryListener interface {
	OnWalletSummary(summary domain.WalletSummary) error
}

// SummaryListenerFunc adapts a function to SummaryListener.
type SummaryListenerFunc func(summary domain.WalletSummary) error

// OnWalletSummary calls f.
func (f SummaryListenerFunc) OnWalletSummary(summary domain.WalletSummary) error {
	return f(summary)
}

// ListenerError is returned when a mutation was applied but a listener failed on it.
type ListenerError struct {
	WalletID string
	Err      error
}

func (e *ListenerError) Error() string {
	return "notify wallet summary listener for " + e.WalletID + ": " + e.Err.Error()
}

func (e *ListenerError) Unwrap() error { return e.Err }

type wallet struct {
	id          string
	currency    string
	available   decimal.Decimal
	betted      decimal.Decimal
	withdrawing decimal.Decimal
}

func (w *wallet) summary() domain.WalletSummary {
	return domain.WalletSummary{
		WalletID:    w.id,
		Currency:    w.currency,
		Available:   w.available,
		Betted:      w.betted,
		Withdrawing: w.withdrawing,
	}
}

// Ledger holds wallet balances and per-currency deposit totals.
type Ledger struct {
	mu         sync.Mutex
	currencies map[string]struct{}
	wallets    map[string]*wallet
	deposited  map[string]decimal.Decimal
	listeners  []SummaryListener
	newID      func() string
}

// New creates a ledger accepting the given currencies.
func New(currencies []string) *Ledger {
	l := &Ledger{
		currencies: make(map[string]struct{}, len(currencies)),
		wallets:    make(map[string]*wallet),
		deposited:  make(map[string]decimal.Decimal, len(currencies)),
		newID:      func() string { return uuid.NewString() },
	}
	for _, c := range currencies {
		c = domain.NormalizeCurrency(c)
		l.currencies[c] = struct{}{}
		l.deposited[c] = decimal.Zero
	}
	return l
}

// AddListener registers a listener for wallet summary changes.
func (l *Ledger) AddListener(listener SummaryListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// CreateWallet opens an empty wallet and returns its id.
func (l *Ledger) CreateWallet(currency string) (string, error) {
	currency = domain.NormalizeCurrency(currency)
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.currencies[currency]; !ok {
		metrics.LedgerCommands.WithLabelValues("create_wallet", "rejected").Inc()
		return "", errors.Wrap(ErrUnsupportedCurrency, currency)
	}
	w := &wallet{id: l.newID(), currency: currency}
	l.wallets[w.id] = w
	metrics.LedgerCommands.WithLabelValues("create_wallet", "ok").Inc()
	return w.id, l.notify(w)
}

// Deposit credits the wallet's available balance.
func (l *Ledger) Deposit(walletID string, amount decimal.Decimal) error {
	return l.mutate("deposit", walletID, amount, func(w *wallet) error {
		w.available = w.available.Add(amount)
		l.deposited[w.currency] = l.deposited[w.currency].Add(amount)
		return nil
	})
}

// PlaceBet moves amount from available to betted.
func (l *Ledger) PlaceBet(walletID string, amount decimal.Decimal) error {
	return l.mutate("place_bet", walletID, amount, func(w *wallet) error {
		if w.available.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.available = w.available.Sub(amount)
		w.betted = w.betted.Add(amount)
		return nil
	})
}

// SettleBet releases stake from betted and credits payout to available. payout may be zero.
func (l *Ledger) SettleBet(walletID string, stake, payout decimal.Decimal) error {
	if payout.IsNegative() {
		return ErrInvalidAmount
	}
	return l.mutate("settle_bet", walletID, stake, func(w *wallet) error {
		if w.betted.LessThan(stake) {
			return ErrInsufficientFunds
		}
		w.betted = w.betted.Sub(stake)
		w.available = w.available.Add(payout)
		return nil
	})
}

// RequestWithdrawal moves amount from available to withdrawing.
func (l *Ledger) RequestWithdrawal(walletID string, amount decimal.Decimal) error {
	return l.mutate("request_withdrawal", walletID, amount, func(w *wallet) error {
		if w.available.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.available = w.available.Sub(amount)
		w.withdrawing = w.withdrawing.Add(amount)
		return nil
	})
}

// CompleteWithdrawal pays out amount from withdrawing.
func (l *Ledger) CompleteWithdrawal(walletID string, amount decimal.Decimal) error {
	return l.mutate("complete_withdrawal", walletID, amount, func(w *wallet) error {
		if w.withdrawing.LessThan(amount) {
			return ErrInsufficientFunds
		}
		w.withdrawing = w.withdrawing.Sub(amount)
		return nil
	})
}

// Summary returns the wallet's current balances.
func (l *Ledger) Summary(walletID string) (domain.WalletSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.wallets[walletID]
	if !ok {
		return domain.WalletSummary{}, errors.Wrap(ErrWalletNotFound, walletID)
	}
	return w.summary(), nil
}

// WalletIDs returns all wallet ids in ascending order.
func (l *Ledger) WalletIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.wallets))
	for id := range l.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalDeposited returns the deposit totals per currency, ordered by currency code.
func (l *Ledger) TotalDeposited() []domain.TotalDeposited {
	l.mu.Lock()
	defer l.mu.Unlock()
	totals := make([]domain.TotalDeposited, 0, len(l.deposited))
	for currency, amount := range l.deposited {
		totals = append(totals, domain.NewTotalDeposited(currency, amount))
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Currency < totals[j].Currency })
	return totals
}

func (l *Ledger) mutate(op, walletID string, amount decimal.Decimal, apply func(w *wallet) error) error {
	if !amount.IsPositive() {
		metrics.LedgerCommands.WithLabelValues(op, "rejected").Inc()
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[walletID]
	if !ok {
		metrics.LedgerCommands.WithLabelValues(op, "rejected").Inc()
		return errors.Wrap(ErrWalletNotFound, walletID)
	}
	if err := apply(w); err != nil {
		metrics.LedgerCommands.WithLabelValues(op, "rejected").Inc()
		return errors.Wrapf(err, "%s wallet %s", op, walletID)
	}
	metrics.LedgerCommands.WithLabelValues(op, "ok").Inc()
	return l.notify(w)
}

// notify runs under l.mu so listeners see a wallet's changes in order.
func (l *Ledger) notify(w *wallet) error {
	summary := w.summary()
	for _, listener := range l.listeners {
		if err := listener.OnWalletSummary(summary); err != nil {
			return &ListenerError{WalletID: w.id, Err: err}
		}
	}
	return nil
}
