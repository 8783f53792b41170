// Command walletboard runs the management dashboard for the wallet ledger.
// It can be configured via a YAML file, command-line arguments or the setup wizard.
//
// Usage:
//
//	walletboard --config config.yaml
//	walletboard --setup
//	walletboard --addr :8080 --currencies EUR,USD (uses CLI arguments)
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/walletboard/config"
	"github.com/vadiminshakov/walletboard/internal/collector"
	"github.com/vadiminshakov/walletboard/internal/dashboard"
	"github.com/vadiminshakov/walletboard/internal/events"
	"github.com/vadiminshakov/walletboard/internal/ledger"
	"github.com/vadiminshakov/walletboard/internal/metrics"
	"github.com/vadiminshakov/walletboard/internal/projection"
	"github.com/vadiminshakov/walletboard/internal/query"
	"github.com/vadiminshakov/walletboard/internal/setup"
	"github.com/vadiminshakov/walletboard/internal/simulate"
	"github.com/vadiminshakov/walletboard/internal/storage/totals"
	"github.com/vadiminshakov/walletboard/internal/web"
)

func main() {
	cfg, opts, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	if opts.Setup {
		if err := setup.RunTUI(config.GeneratedFile); err != nil {
			log.Fatal(err)
		}
		if cfg, err = config.Load(config.GeneratedFile); err != nil {
			log.Fatal(err)
		}
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatal("walletboard stopped", zap.Error(err))
	}
	logger.Info("walletboard stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", level)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(reg); err != nil {
		return errors.Wrap(err, "register metrics")
	}

	// lock order: ledger -> projection -> gateway
	wallets := ledger.New(cfg.Currencies)
	gateway := query.NewGateway(logger.Named("query"), nil, 0)
	defer gateway.Close()
	top := projection.NewTopWallets(logger.Named("projection"), cfg.TopSize, cfg.Rates, gateway)
	gateway.SetSource(top)
	wallets.AddListener(top)

	store, err := totals.NewWALStore(cfg.WALDir)
	if err != nil {
		return errors.Wrap(err, "open deposit totals store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close deposit totals store", zap.Error(err))
		}
	}()

	feed := events.NewTotalsBroadcaster(0)
	coll := collector.New(logger.Named("collector"), wallets, feed, cfg.CollectInterval, collector.WithStore(store))

	screens := dashboard.NewFactory(logger, feed, gateway, store, dashboard.Options{
		Currencies:  cfg.Currencies,
		Window:      cfg.WindowSize,
		TopSize:     cfg.TopSize,
		TrendPeriod: cfg.TrendPeriod,
	})
	srv := web.NewServer(logger, cfg.ListenAddr, screens, store, reg)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(coll.Run(ctx))
	})

	g.Go(func() error {
		if len(cfg.TLS.Domains) > 0 {
			return srv.StartWithAutoTLS(ctx, cfg.TLS.Domains, cfg.TLS.CacheDir)
		}
		return srv.Start(ctx)
	})

	if cfg.Simulate.Enabled {
		sim := simulate.New(logger, wallets, cfg.Currencies, cfg.Simulate.Wallets,
			cfg.Simulate.EventsPerSecond, time.Now().UnixNano())
		g.Go(func() error {
			return ignoreCanceled(sim.Run(ctx))
		})
	}

	logger.Info("walletboard started",
		zap.Strings("currencies", cfg.Currencies),
		zap.Int("top_size", cfg.TopSize),
		zap.Bool("simulate", cfg.Simulate.Enabled))

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
