// Package query implements the subscription queries served to dashboards.
package query

import "sync"

// SubscriptionResult is an initial query result plus a live stream of updates.
type SubscriptionResult[I, U any] struct {
	initial I
	updates <-chan U
	cancel  func()
	once    sync.Once
}

// NewSubscriptionResult wraps an initial result, an update stream and its cancel function.
func NewSubscriptionResult[I, U any](initial I, updates <-chan U, cancel func()) *SubscriptionResult[I, U] {
	return &SubscriptionResult[I, U]{initial: initial, updates: updates, cancel: cancel}
}

// InitialResult returns the result as of subscription time.
func (r *SubscriptionResult[I, U]) InitialResult() I {
	return r.initial
}

// Updates returns the update stream. It is closed after Cancel or when the
// publisher drops the subscription.
func (r *SubscriptionResult[I, U]) Updates() <-chan U {
	return r.updates
}

// Cancel releases the subscription. Only the first call has an effect.
func (r *SubscriptionResult[I, U]) Cancel() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}
