// Package events carries push notifications from backend collectors to dashboards.
package events

import (
	"sync"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
)

// TotalsBroadcaster fans deposit totals out to all subscribers via buffered channels.
type TotalsBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.DepositTotals]struct{}
	buffer int
}

// NewTotalsBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewTotalsBroadcaster(buffer int) *TotalsBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &TotalsBroadcaster{
		subs:   make(map[chan domain.DepositTotals]struct{}),
		buffer: buffer,
	}
}

// Publish sends the totals to all subscribers, dropping if a reader is slow.
func (b *TotalsBroadcaster) Publish(t domain.DepositTotals) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- t:
		default:
			metrics.DroppedPushes.WithLabelValues(metrics.FeedTotals).Inc()
		}
	}
}

// Subscribe returns a channel that receives totals until Unsubscribe is called.
func (b *TotalsBroadcaster) Subscribe() chan domain.DepositTotals {
	ch := make(chan domain.DepositTotals, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it. Safe to call more than once.
func (b *TotalsBroadcaster) Unsubscribe(ch chan domain.DepositTotals) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of registered subscribers.
func (b *TotalsBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
