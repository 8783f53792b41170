// Package simulate drives the ledger with random wallet traffic so the
// dashboard has something to show without a real backend.
package simulate

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/ledger"
)

type walletLedger interface {
	CreateWallet(currency string) (string, error)
	Deposit(walletID string, amount decimal.Decimal) error
	PlaceBet(walletID string, amount decimal.Decimal) error
	SettleBet(walletID string, stake, payout decimal.Decimal) error
	RequestWithdrawal(walletID string, amount decimal.Decimal) error
	CompleteWithdrawal(walletID string, amount decimal.Decimal) error
	Summary(walletID string) (domain.WalletSummary, error)
}

// Action is a ledger command the simulator can issue.
type Action string

const (
	ActionDeposit            Action = "deposit"
	ActionPlaceBet           Action = "place_bet"
	ActionSettleBet          Action = "settle_bet"
	ActionRequestWithdrawal  Action = "request_withdrawal"
	ActionCompleteWithdrawal Action = "complete_withdrawal"
	ActionNone               Action = "none"
)

var (
	minDeposit = decimal.NewFromInt(10)
	maxDeposit = decimal.NewFromInt(500)
	hundred    = decimal.NewFromInt(100)
)

// Simulator creates wallets and issues random commands at a limited rate.
type Simulator struct {
	logger     *zap.Logger
	ledger     walletLedger
	currencies []string
	wallets    int
	limiter    *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
	ids []string
}

// New creates a simulator issuing at most eventsPerSecond commands.
func New(logger *zap.Logger, l walletLedger, currencies []string, wallets int, eventsPerSecond float64, seed int64) *Simulator {
	if wallets < 1 {
		wallets = 1
	}
	burst := int(eventsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Simulator{
		logger:     logger.Named("simulate"),
		ledger:     l,
		currencies: currencies,
		wallets:    wallets,
		limiter:    rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Seed creates the wallets, each with an opening deposit. It is a no-op once wallets exist.
func (s *Simulator) Seed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) > 0 {
		return nil
	}
	if len(s.currencies) == 0 {
		return errors.New("no currencies to simulate")
	}

	for i := 0; i < s.wallets; i++ {
		currency := s.currencies[s.rng.Intn(len(s.currencies))]
		id, err := s.ledger.CreateWallet(currency)
		if err != nil {
			return errors.Wrap(err, "create wallet")
		}
		s.ids = append(s.ids, id)
		if err := s.ledger.Deposit(id, s.randomAmount(minDeposit, maxDeposit)); err != nil {
			return errors.Wrapf(err, "opening deposit for %s", id)
		}
	}
	s.logger.Info("simulated wallets created", zap.Int("wallets", len(s.ids)))
	return nil
}

// Run seeds wallets and issues commands until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Seed(); err != nil {
		return err
	}
	for {
		// Wait only fails once ctx is done or its deadline is too close to make
		if err := s.limiter.Wait(ctx); err != nil {
			<-ctx.Done()
			return ctx.Err()
		}
		if _, err := s.Step(); err != nil {
			s.logger.Warn("simulated command failed", zap.Error(err))
		}
	}
}

// Step issues one random command against a random wallet and reports which one.
func (s *Simulator) Step() (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return ActionNone, errors.New("simulator is not seeded")
	}

	id := s.ids[s.rng.Intn(len(s.ids))]
	summary, err := s.ledger.Summary(id)
	if err != nil {
		return ActionNone, err
	}

	action := s.pick(summary)
	switch action {
	case ActionDeposit:
		err = s.ledger.Deposit(id, s.randomAmount(minDeposit, maxDeposit))
	case ActionPlaceBet:
		err = s.ledger.PlaceBet(id, s.portion(summary.Available))
	case ActionSettleBet:
		stake := s.portion(summary.Betted)
		payout := decimal.Zero
		if s.rng.Intn(2) == 0 {
			payout = stake.Mul(decimal.NewFromInt(2))
		}
		err = s.ledger.SettleBet(id, stake, payout)
	case ActionRequestWithdrawal:
		err = s.ledger.RequestWithdrawal(id, s.portion(summary.Available))
	case ActionCompleteWithdrawal:
		err = s.ledger.CompleteWithdrawal(id, summary.Withdrawing)
	}
	if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrInvalidAmount) {
		s.logger.Debug("simulated command rejected", zap.String("action", string(action)), zap.Error(err))
		return action, nil
	}
	return action, err
}

// pick chooses an action the wallet can afford.
func (s *Simulator) pick(w domain.WalletSummary) Action {
	candidates := []Action{ActionDeposit}
	if w.Available.GreaterThan(decimal.NewFromInt(1)) {
		candidates = append(candidates, ActionPlaceBet, ActionPlaceBet, ActionRequestWithdrawal)
	}
	if w.Betted.GreaterThan(decimal.NewFromInt(1)) {
		candidates = append(candidates, ActionSettleBet, ActionSettleBet)
	}
	if w.Withdrawing.IsPositive() {
		candidates = append(candidates, ActionCompleteWithdrawal)
	}
	return candidates[s.rng.Intn(len(candidates))]
}

// portion returns 10% to 50% of amount, rounded down to cents and at least one cent.
func (s *Simulator) portion(amount decimal.Decimal) decimal.Decimal {
	pct := decimal.NewFromInt(int64(10 + s.rng.Intn(41)))
	p := amount.Mul(pct).Div(hundred).RoundDown(2)
	if !p.IsPositive() {
		return decimal.New(1, -2)
	}
	return p
}

func (s *Simulator) randomAmount(min, max decimal.Decimal) decimal.Decimal {
	span := max.Sub(min).IntPart()
	return min.Add(decimal.NewFromInt(s.rng.Int63n(span + 1)))
}

// Wallets returns the ids of the simulated wallets.
func (s *Simulator) Wallets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}
