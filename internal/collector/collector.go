// Package collector gathers management data from the ledger and pushes it to dashboards.
package collector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletboard/internal/domain"
	"github.com/vadiminshakov/walletboard/internal/metrics"
	"github.com/vadiminshakov/walletboard/pkg/retrier"
)

const defaultInterval = time.Second

type totalsSource interface {
	TotalDeposited() []domain.TotalDeposited
}

type totalsPublisher interface {
	Publish(totals domain.DepositTotals)
}

type totalsStore interface {
	Save(totals domain.DepositTotals) error
}

// Collector periodically reads deposit totals, persists them and publishes them to listeners.
type Collector struct {
	logger    *zap.Logger
	source    totalsSource
	publisher totalsPublisher
	store     totalsStore
	interval  time.Duration
	retrier   *retrier.Retrier
	now       func() time.Time
}

// Option configures the Collector.
type Option func(*Collector)

// WithStore persists every push to store before publishing it.
func WithStore(store totalsStore) Option {
	return func(c *Collector) {
		c.store = store
	}
}

// WithRetrier overrides the retry policy used for persistence.
func WithRetrier(r *retrier.Retrier) Option {
	return func(c *Collector) {
		c.retrier = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New creates a collector publishing every interval.
func New(logger *zap.Logger, source totalsSource, publisher totalsPublisher, interval time.Duration, opts ...Option) *Collector {
	if interval <= 0 {
		interval = defaultInterval
	}
	c := &Collector{
		logger:    logger,
		source:    source,
		publisher: publisher,
		interval:  interval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = retrier.New(retrier.WithNotify(func(attempt int, err error) {
			logger.Warn("retrying deposit totals persistence", zap.Int("attempt", attempt), zap.Error(err))
		}))
	}
	return c
}

// Run collects on every tick until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("starting management data collector", zap.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context done, stopping management data collector")
			return ctx.Err()
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				c.logger.Error("failed to collect deposit totals", zap.Error(err))
			}
		}
	}
}

// Collect reads, persists and publishes one push of deposit totals.
// The push is published even when persistence fails; the persistence error is returned.
func (c *Collector) Collect(ctx context.Context) error {
	totals := domain.DepositTotals{
		Timestamp: c.now(),
		Totals:    c.source.TotalDeposited(),
	}

	var storeErr error
	if c.store != nil {
		storeErr = c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.store.Save(totals)
		})
		if storeErr != nil {
			storeErr = errors.Wrap(storeErr, "persist deposit totals")
		}
	}

	c.publisher.Publish(totals)
	metrics.TotalsPublished.Inc()
	c.logger.Debug("published deposit totals", zap.Int("currencies", len(totals.Totals)))

	return storeErr
}
