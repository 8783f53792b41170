package query

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/projection"
)

type staticSource struct {
	mu  sync.Mutex
	top []domain.TopWalletSummary
}

func (s *staticSource) ReadTop(fn func(top []domain.TopWalletSummary)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.top)
}

func summary(id string, available int64) domain.TopWalletSummary {
	return domain.TopWalletSummary{
		WalletID:    id,
		Available:   decimal.NewFromInt(available),
		Betted:      decimal.Zero,
		Withdrawing: decimal.Zero,
	}
}

func receive(t *testing.T, ch <-chan domain.TopWalletsChange) domain.TopWalletsChange {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "update stream closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return nil
	}
}

func TestGateway_SubscriptionQuery(t *testing.T) {
	source := &staticSource{top: []domain.TopWalletSummary{summary("a", 30), summary("b", 20), summary("c", 10)}}
	g := NewGateway(zap.NewNop(), source, 8)

	res, err := g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{Size: 2})
	require.NoError(t, err)
	defer res.Cancel()

	initial := res.InitialResult()
	require.Len(t, initial, 2)
	assert.Equal(t, "a", initial[0].WalletID)
	assert.Equal(t, "b", initial[1].WalletID)

	t.Run("member change is truncated to query size", func(t *testing.T) {
		g.Emit(domain.TopWalletsMemberChange{Summaries: []domain.TopWalletSummary{summary("c", 40), summary("a", 30), summary("b", 20)}})
		change := receive(t, res.Updates())
		members, ok := change.(domain.TopWalletsMemberChange)
		require.True(t, ok)
		assert.Len(t, members.Summaries, 2)
	})

	t.Run("value change outside query size is skipped", func(t *testing.T) {
		g.Emit(domain.TopWalletsValueChange{Position: 2, Summary: summary("b", 21)})
		g.Emit(domain.TopWalletsValueChange{Position: 1, Summary: summary("a", 31)})
		change := receive(t, res.Updates())
		value, ok := change.(domain.TopWalletsValueChange)
		require.True(t, ok)
		assert.Equal(t, 1, value.Position)
	})
}

func TestGateway_CancelClosesStream(t *testing.T) {
	g := NewGateway(zap.NewNop(), &staticSource{}, 1)
	res, err := g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{Size: 10})
	require.NoError(t, err)
	require.Equal(t, 1, g.Subscribers())

	res.Cancel()
	res.Cancel()

	_, open := <-res.Updates()
	assert.False(t, open)
	assert.Equal(t, 0, g.Subscribers())
}

func TestGateway_ContextEndsSubscription(t *testing.T) {
	g := NewGateway(zap.NewNop(), &staticSource{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	res, err := g.SubscriptionQuery(ctx, domain.TopWalletSummaryQuery{Size: 10})
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool { return g.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-res.Updates()
	assert.False(t, open)
}

func TestGateway_DropsSlowSubscriber(t *testing.T) {
	g := NewGateway(zap.NewNop(), &staticSource{}, 1)
	res, err := g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{Size: 10})
	require.NoError(t, err)

	g.Emit(domain.TopWalletsValueChange{Position: 0, Summary: summary("a", 1)})
	g.Emit(domain.TopWalletsValueChange{Position: 0, Summary: summary("a", 2)})

	assert.Equal(t, 0, g.Subscribers())
	_, ok := <-res.Updates()
	assert.True(t, ok, "buffered change is still readable")
	_, ok = <-res.Updates()
	assert.False(t, ok, "stream closed after drop")

	assert.NotPanics(t, res.Cancel)
}

func TestGateway_Close(t *testing.T) {
	g := NewGateway(zap.NewNop(), &staticSource{}, 1)
	res, err := g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{})
	require.NoError(t, err)

	g.Close()
	_, open := <-res.Updates()
	assert.False(t, open)

	_, err = g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriptionResult_CancelOnce(t *testing.T) {
	calls := 0
	res := NewSubscriptionResult[int, string](1, make(chan string), func() { calls++ })
	res.Cancel()
	res.Cancel()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.InitialResult())
}

func TestGateway_NoChangeLostBetweenSnapshotAndRegistration(t *testing.T) {
	g := NewGateway(zap.NewNop(), nil, 10_000)
	top := projection.NewTopWallets(zap.NewNop(), 5, map[string]decimal.Decimal{"EUR": decimal.NewFromInt(1)}, g)
	g.SetSource(top)
	defer g.Close()

	const updates = 2000
	halfway := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < updates; i++ {
			if i == updates/2 {
				close(halfway)
			}
			err := top.OnWalletSummary(domain.WalletSummary{
				WalletID:  fmt.Sprintf("w%02d", i%17),
				Currency:  "EUR",
				Available: decimal.NewFromInt(int64((i * 7919) % 1000)),
			})
			if err != nil {
				t.Error(err)
				return
			}
		}
	}()

	<-halfway
	res, err := g.SubscriptionQuery(context.Background(), domain.TopWalletSummaryQuery{Size: 5})
	require.NoError(t, err)
	defer res.Cancel()
	<-done

	view := res.InitialResult()
	for {
		var change domain.TopWalletsChange
		select {
		case change = <-res.Updates():
		default:
		}
		if change == nil {
			break
		}
		switch c := change.(type) {
		case domain.TopWalletsMemberChange:
			view = c.Summaries
		case domain.TopWalletsValueChange:
			require.Less(t, c.Position, len(view))
			view[c.Position] = c.Summary
		}
	}

	want := top.Top()
	require.Len(t, view, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(view[i]), "position %d: want %s, got %s", i, want[i].WalletID, view[i].WalletID)
	}
	assert.Equal(t, 1, g.Subscribers(), "subscriber was never dropped")
}
