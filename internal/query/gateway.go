package query

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
)

const defaultUpdateBuffer = 128

// ErrClosed is returned when querying a closed gateway.
var ErrClosed = errors.New("query gateway is closed")

// TopWalletsResult is the result of the top wallets subscription query.
type TopWalletsResult = SubscriptionResult[[]domain.TopWalletSummary, domain.TopWalletsChange]

type topWalletsSource interface {
	// ReadTop calls fn with the current ranking while no update can be emitted.
	ReadTop(fn func(top []domain.TopWalletSummary))
}

type subscriber struct {
	size    int
	updates chan domain.TopWalletsChange
	done    chan struct{}
}

func (s *subscriber) close() {
	close(s.updates)
	close(s.done)
}

// Gateway serves the top wallets subscription query and fans emitted changes out to subscribers.
type Gateway struct {
	logger *zap.Logger
	source topWalletsSource
	buffer int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
}

// NewGateway creates a gateway reading the initial ranking from source.
func NewGateway(logger *zap.Logger, source topWalletsSource, buffer int) *Gateway {
	if buffer < 1 {
		buffer = defaultUpdateBuffer
	}
	return &Gateway{
		logger: logger,
		source: source,
		buffer: buffer,
		subs:   make(map[uint64]*subscriber),
	}
}

// SetSource attaches the ranking source. Used when the source itself needs the gateway as its emitter.
func (g *Gateway) SetSource(source topWalletsSource) {
	g.mu.Lock()
	g.source = source
	g.mu.Unlock()
}

// SubscriptionQuery returns the current top wallets and a stream of subsequent changes.
// The subscription ends when ctx is done or Cancel is called.
func (g *Gateway) SubscriptionQuery(ctx context.Context, q domain.TopWalletSummaryQuery) (*TopWalletsResult, error) {
	g.mu.Lock()
	source := g.source
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if source == nil {
		return nil, errors.New("top wallets source is not configured")
	}

	var (
		id      uint64
		initial []domain.TopWalletSummary
		sub     = &subscriber{
			size:    q.Size,
			updates: make(chan domain.TopWalletsChange, g.buffer),
			done:    make(chan struct{}),
		}
	)
	source.ReadTop(func(top []domain.TopWalletSummary) {
		initial = truncate(top, q.Size)
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed {
			return
		}
		g.nextID++
		id = g.nextID
		g.subs[id] = sub
	})
	if id == 0 {
		return nil, ErrClosed
	}

	result := NewSubscriptionResult[[]domain.TopWalletSummary, domain.TopWalletsChange](
		initial, sub.updates, func() { g.remove(id) },
	)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				result.Cancel()
			case <-sub.done:
			}
		}()
	}

	return result, nil
}

// Emit delivers a change to every subscriber. A subscriber whose buffer is full is dropped.
func (g *Gateway) Emit(change domain.TopWalletsChange) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, sub := range g.subs {
		c, ok := fitChange(change, sub.size)
		if !ok {
			continue
		}
		select {
		case sub.updates <- c:
		default:
			g.logger.Warn("dropping slow top wallets subscriber", zap.Uint64("subscription", id))
			metrics.DroppedPushes.WithLabelValues(metrics.FeedTopWallets).Inc()
			delete(g.subs, id)
			sub.close()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (g *Gateway) Subscribers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs)
}

// Close ends every subscription and rejects new queries.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for id, sub := range g.subs {
		delete(g.subs, id)
		sub.close()
	}
}

func (g *Gateway) remove(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sub, ok := g.subs[id]; ok {
		delete(g.subs, id)
		sub.close()
	}
}

// fitChange trims a change to the subscriber's requested size.
// Value changes beyond the requested size are not delivered.
func fitChange(change domain.TopWalletsChange, size int) (domain.TopWalletsChange, bool) {
	switch c := change.(type) {
	case domain.TopWalletsMemberChange:
		return domain.TopWalletsMemberChange{Summaries: truncate(c.Summaries, size)}, true
	case domain.TopWalletsValueChange:
		if size > 0 && c.Position >= size {
			return nil, false
		}
		return c, true
	default:
		return nil, false
	}
}

func truncate(top []domain.TopWalletSummary, size int) []domain.TopWalletSummary {
	n := len(top)
	if size > 0 && size < n {
		n = size
	}
	out := make([]domain.TopWalletSummary, n)
	copy(out, top[:n])
	return out
}
