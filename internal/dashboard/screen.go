// Package dashboard implements the management screen: live deposit totals per
// currency and a ranked chart of the top wallets.
//
// Chart state is owned by a single update goroutine. Backend pushes are
// marshalled onto it through access, so mutations never interleave, and every
// resulting frame is emitted from it in order.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/chart"
	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
	"github.com/vadiminshakov/walletboard/internal/query"
	"github.com/vadiminshakov/walletboard/pkg/indicators"
)

const (
	defaultTopSize     = 10
	defaultTrendPeriod = 5
	defaultFrameBuffer = 64
	mailboxSize        = 64
)

// ErrScreenClosed is returned when using a closed screen.
var ErrScreenClosed = errors.New("screen is closed")

// DefaultCurrencies are charted when none are configured.
var DefaultCurrencies = []string{"EUR", "USD"}

type totalsFeed interface {
	Subscribe() chan domain.DepositTotals
	Unsubscribe(ch chan domain.DepositTotals)
}

type topWalletsGateway interface {
	SubscriptionQuery(ctx context.Context, q domain.TopWalletSummaryQuery) (*query.TopWalletsResult, error)
}

type totalsHistory interface {
	Recent(n int) ([]domain.DepositTotals, error)
}

// Options configures a screen.
type Options struct {
	Currencies []string
	// Window is the number of points kept per deposit series, capped at chart.DefaultWindow.
	Window      int
	TopSize     int
	TrendPeriod int
	FrameBuffer int
}

func (o Options) withDefaults() Options {
	if len(o.Currencies) == 0 {
		o.Currencies = DefaultCurrencies
	}
	if o.Window < 1 || o.Window > chart.DefaultWindow {
		o.Window = chart.DefaultWindow
	}
	if o.TopSize < 1 {
		o.TopSize = defaultTopSize
	}
	if o.TrendPeriod < 1 {
		o.TrendPeriod = defaultTrendPeriod
	}
	if o.FrameBuffer < 1 {
		o.FrameBuffer = defaultFrameBuffer
	}
	return o
}

// View is a copy of a screen's chart state.
type View struct {
	Totals      map[string][]chart.Point
	Categories  []string
	Available   []decimal.Decimal
	Betted      []decimal.Decimal
	Withdrawing []decimal.Decimal
}

// Screen is one open management dashboard.
type Screen struct {
	id      string
	logger  *zap.Logger
	feed    totalsFeed
	gateway topWalletsGateway
	history totalsHistory
	opts    Options

	// owned by the update goroutine
	currencies  []string
	totals      map[string]*chart.DataSeries
	categories  []string
	available   *chart.ListSeries
	betted      *chart.ListSeries
	withdrawing *chart.ListSeries

	mailbox chan func()
	frames  chan Frame
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	opened    bool
	closing   bool
	totalsCh  chan domain.DepositTotals
	topResult *query.TopWalletsResult
	closeOnce sync.Once
}

// NewScreen creates a screen. history may be nil.
func NewScreen(logger *zap.Logger, feed totalsFeed, gateway topWalletsGateway, history totalsHistory, opts Options) *Screen {
	opts = opts.withDefaults()
	id := uuid.NewString()

	s := &Screen{
		id:          id,
		logger:      logger.With(zap.String("screen", id)),
		feed:        feed,
		gateway:     gateway,
		history:     history,
		opts:        opts,
		totals:      make(map[string]*chart.DataSeries, len(opts.Currencies)),
		available:   chart.NewListSeries(seriesAvailable),
		betted:      chart.NewListSeries(seriesBetted),
		withdrawing: chart.NewListSeries(seriesWithdrawing),
		mailbox:     make(chan func(), mailboxSize),
		frames:      make(chan Frame, opts.FrameBuffer),
		done:        make(chan struct{}),
	}
	for _, c := range opts.Currencies {
		c = domain.NormalizeCurrency(c)
		if _, ok := s.totals[c]; ok {
			continue
		}
		s.currencies = append(s.currencies, c)
		s.totals[c] = chart.NewDataSeries(totalsSeriesName(c), opts.Window)
	}
	return s
}

// ID identifies the screen in logs.
func (s *Screen) ID() string {
	return s.id
}

// Frames returns the stream of chart mutations. It is closed by Close.
func (s *Screen) Frames() <-chan Frame {
	return s.frames
}

// Open starts the update goroutine, draws the layout, registers for deposit
// totals and subscribes to the top wallets query. The subscription lives until
// Close is called or ctx is done.
func (s *Screen) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrScreenClosed
	}
	if s.opened {
		s.mu.Unlock()
		return errors.New("screen is already open")
	}
	s.opened = true
	s.mu.Unlock()

	metrics.OpenScreens.Inc()

	s.wg.Add(1)
	go s.loop()

	s.access(func() {
		s.emit(Frame{Kind: FrameLayout, Payload: s.layout()})
	})

	// subscribe before reading history so no push falls between the two;
	// pushes already in history are dropped by UpdateTotals
	totalsCh := s.feed.Subscribe()
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.feed.Unsubscribe(totalsCh)
		return ErrScreenClosed
	}
	s.totalsCh = totalsCh
	s.mu.Unlock()

	s.seedTotals()

	s.wg.Add(1)
	go s.watchTotals(totalsCh)

	res, err := s.subscribeTopWallets(ctx)
	if err != nil {
		s.Close()
		return errors.Wrap(err, "subscribe to top wallets")
	}

	s.wg.Add(1)
	go s.watchTopWallets(ctx, res)

	s.logger.Debug("screen opened")
	return nil
}

// Close unregisters from deposit totals, cancels the top wallets subscription,
// stops the update goroutine and closes Frames. Safe to call more than once.
func (s *Screen) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		opened := s.opened
		totalsCh := s.totalsCh
		res := s.topResult
		s.mu.Unlock()

		if totalsCh != nil {
			s.feed.Unsubscribe(totalsCh)
		}
		if res != nil {
			res.Cancel()
		}

		close(s.done)
		s.wg.Wait()
		close(s.frames)

		if opened {
			metrics.OpenScreens.Dec()
		}
		s.logger.Debug("screen closed")
	})
}

// UpdateTotals appends one point per known currency, shifting out the oldest
// point once the window is full. Unknown currencies and points not newer than
// the series' last point are ignored.
func (s *Screen) UpdateTotals(ts time.Time, totals []domain.TotalDeposited) {
	s.access(func() {
		for _, t := range totals {
			currency := domain.NormalizeCurrency(t.Currency)
			series, ok := s.totals[currency]
			if !ok {
				s.logger.Debug("ignoring deposit totals for unknown currency", zap.String("currency", currency))
				continue
			}

			point := chart.NewPoint(ts, t.Amount)
			if last, ok := series.Last(); ok && point.X <= last.X {
				s.logger.Debug("ignoring stale deposit totals point",
					zap.String("currency", currency), zap.Int64("x", point.X), zap.Int64("last_x", last.X))
				continue
			}
			payload := TotalsPointPayload{
				ChartID:  totalsChartID(currency),
				Currency: currency,
				Point:    point,
				Shift:    series.Add(point),
			}
			if trend, ok := indicators.LastEMA(series.Values(), s.opts.TrendPeriod); ok {
				payload.Trend = &trend
			}
			s.emit(Frame{Kind: FrameTotalsPoint, Payload: payload})
		}
	})
}

// View returns a copy of the chart state as seen by the update goroutine.
func (s *Screen) View() (View, error) {
	result := make(chan View, 1)
	if !s.access(func() { result <- s.snapshot() }) {
		return View{}, ErrScreenClosed
	}
	select {
	case v := <-result:
		return v, nil
	case <-s.done:
		return View{}, ErrScreenClosed
	}
}

func (s *Screen) processNewTopMembers(top []domain.TopWalletSummary) {
	categories := make([]string, len(top))
	available := make([]decimal.Decimal, len(top))
	betted := make([]decimal.Decimal, len(top))
	withdrawing := make([]decimal.Decimal, len(top))
	for i, w := range top {
		categories[i] = w.WalletID
		available[i] = w.Available
		betted[i] = w.Betted
		withdrawing[i] = w.Withdrawing
	}

	s.access(func() {
		s.categories = categories
		s.available.SetData(available...)
		s.betted.SetData(betted...)
		s.withdrawing.SetData(withdrawing...)
		s.emit(Frame{Kind: FrameTopMembers, Payload: TopMembersPayload{
			Categories:  categories,
			Available:   available,
			Betted:      betted,
			Withdrawing: withdrawing,
		}})
	})
}

func (s *Screen) processTopDataChange(pos int, summary domain.TopWalletSummary) {
	s.access(func() {
		if pos < 0 || pos >= len(s.categories) {
			s.logger.Warn("top wallets value change out of range",
				zap.Int("position", pos), zap.Int("size", len(s.categories)))
			return
		}
		for _, u := range []struct {
			series *chart.ListSeries
			value  decimal.Decimal
		}{
			{s.available, summary.Available},
			{s.betted, summary.Betted},
			{s.withdrawing, summary.Withdrawing},
		} {
			if err := u.series.UpdatePoint(pos, u.value); err != nil {
				s.logger.Error("failed to update top wallets point", zap.Error(err))
				return
			}
		}
		s.emit(Frame{Kind: FrameTopValue, Payload: TopValuePayload{
			Position:    pos,
			Available:   summary.Available,
			Betted:      summary.Betted,
			Withdrawing: summary.Withdrawing,
		}})
	})
}

func (s *Screen) subscribeTopWallets(ctx context.Context) (*query.TopWalletsResult, error) {
	res, err := s.gateway.SubscriptionQuery(ctx, domain.TopWalletSummaryQuery{Size: s.opts.TopSize})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		res.Cancel()
		return nil, ErrScreenClosed
	}
	s.topResult = res
	s.mu.Unlock()

	s.processNewTopMembers(res.InitialResult())
	return res, nil
}

func (s *Screen) watchTotals(ch chan domain.DepositTotals) {
	defer s.wg.Done()
	for t := range ch {
		s.UpdateTotals(t.Timestamp, t.Totals)
	}
}

func (s *Screen) watchTopWallets(ctx context.Context, res *query.TopWalletsResult) {
	defer s.wg.Done()
	for {
		for change := range res.Updates() {
			switch c := change.(type) {
			case domain.TopWalletsMemberChange:
				s.processNewTopMembers(c.Summaries)
			case domain.TopWalletsValueChange:
				s.processTopDataChange(c.Position, c.Summary)
			}
		}

		if s.isClosing() || ctx.Err() != nil {
			return
		}

		s.logger.Warn("top wallets subscription dropped, resubscribing")
		next, err := s.subscribeTopWallets(ctx)
		if err != nil {
			if !errors.Is(err, ErrScreenClosed) {
				s.logger.Error("failed to resubscribe to top wallets", zap.Error(err))
			}
			return
		}
		res = next
	}
}

func (s *Screen) seedTotals() {
	if s.history == nil {
		return
	}
	recent, err := s.history.Recent(s.opts.Window)
	if err != nil {
		s.logger.Warn("failed to load deposit totals history", zap.Error(err))
		return
	}
	for _, t := range recent {
		s.UpdateTotals(t.Timestamp, t.Totals)
	}
}

func (s *Screen) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// access queues fn on the update goroutine. It reports false if the screen closed first.
func (s *Screen) access(fn func()) bool {
	select {
	case s.mailbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Screen) loop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// emit must only be called from the update goroutine.
func (s *Screen) emit(f Frame) {
	select {
	case s.frames <- f:
	case <-s.done:
	}
}

func (s *Screen) snapshot() View {
	totals := make(map[string][]chart.Point, len(s.totals))
	for currency, series := range s.totals {
		totals[currency] = series.Points()
	}
	categories := make([]string, len(s.categories))
	copy(categories, s.categories)
	return View{
		Totals:      totals,
		Categories:  categories,
		Available:   s.available.Data(),
		Betted:      s.betted.Data(),
		Withdrawing: s.withdrawing.Data(),
	}
}
