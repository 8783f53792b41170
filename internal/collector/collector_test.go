package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/pkg/retrier"
)

type fixedSource struct {
	totals []domain.TotalDeposited
}

func (s fixedSource) TotalDeposited() []domain.TotalDeposited {
	return s.totals
}

type capturingPublisher struct {
	mu     sync.Mutex
	pushes []domain.DepositTotals
}

func (p *capturingPublisher) Publish(t domain.DepositTotals) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, t)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

type flakyStore struct {
	failures  int
	permanent bool
	calls     int
	saved     []domain.DepositTotals
}

func (s *flakyStore) Save(t domain.DepositTotals) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		if s.permanent {
			return retrier.Permanent(errors.New("bad record"))
		}
		return errors.New("disk busy")
	}
	s.saved = append(s.saved, t)
	return nil
}

func testSource() fixedSource {
	return fixedSource{totals: []domain.TotalDeposited{
		domain.NewTotalDeposited("EUR", decimal.NewFromInt(100)),
		domain.NewTotalDeposited("USD", decimal.NewFromInt(50)),
	}}
}

func fastRetrier(retries int) *retrier.Retrier {
	return retrier.New(retrier.WithMaxRetries(retries), retrier.WithInitialInterval(time.Millisecond))
}

func TestCollector_Collect(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	publisher := &capturingPublisher{}
	store := &flakyStore{failures: 1}
	c := New(zap.NewNop(), testSource(), publisher, time.Second,
		WithStore(store),
		WithRetrier(fastRetrier(2)),
		WithClock(func() time.Time { return now }),
	)

	require.NoError(t, c.Collect(context.Background()))

	require.Len(t, publisher.pushes, 1)
	assert.True(t, publisher.pushes[0].Timestamp.Equal(now))
	assert.Len(t, publisher.pushes[0].Totals, 2)
	require.Len(t, store.saved, 1, "saved after one retry")
}

func TestCollector_PublishesWhenStoreFails(t *testing.T) {
	publisher := &capturingPublisher{}
	store := &flakyStore{failures: 10}
	c := New(zap.NewNop(), testSource(), publisher, time.Second,
		WithStore(store),
		WithRetrier(fastRetrier(1)),
	)

	err := c.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, publisher.count())
	assert.Empty(t, store.saved)
}

func TestCollector_Run(t *testing.T) {
	publisher := &capturingPublisher{}
	c := New(zap.NewNop(), testSource(), publisher, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return publisher.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCollector_DoesNotRetryPermanentStoreErrors(t *testing.T) {
	publisher := &capturingPublisher{}
	store := &flakyStore{failures: 10, permanent: true}
	c := New(zap.NewNop(), testSource(), publisher, time.Second,
		WithStore(store),
		WithRetrier(fastRetrier(5)),
	)

	err := c.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, publisher.count())
}
