package config

import (
	"flag"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr      = ":8080"
	// DefaultWindowSize is also the largest accepted window.
	DefaultWindowSize      = 20
	DefaultTopSize         = 10
	DefaultTrendPeriod     = 5
	DefaultCollectInterval = time.Second
	DefaultWALDir          = "./wal/totals"
	DefaultLogLevel        = "info"
	DefaultSimWallets      = 50
	DefaultSimRate         = 20.0

	// GeneratedFile is where the setup wizard writes its config.
	GeneratedFile = "config.gen.yaml"
)

// DefaultRates convert the default currencies to EUR.
var DefaultRates = map[string]string{"EUR": "1", "USD": "0.92"}

type TLSConfig struct {
	Domains  []string
	CacheDir string
}

type SimulateConfig struct {
	Enabled         bool
	Wallets         int
	EventsPerSecond float64
}

type Config struct {
	ListenAddr      string
	TLS             TLSConfig
	Currencies      []string
	WindowSize      int
	TopSize         int
	TrendPeriod     int
	CollectInterval time.Duration
	WALDir          string
	// Rates convert a currency to EUR.
	Rates    map[string]decimal.Decimal
	LogLevel string
	Simulate SimulateConfig
}

// Options are the parsed command line switches.
type Options struct {
	Path  string
	Setup bool
}

type TLSConfigTmp struct {
	Domains  []string `yaml:"domains,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty"`
}

type SimulateConfigTmp struct {
	Enabled            bool   `yaml:"enabled"`
	Wallets            int    `yaml:"wallets,omitempty"`
	EventsPerSecondStr string `yaml:"events_per_second,omitempty"`
}

type ConfigTmp struct {
	ListenAddr      string            `yaml:"listen_addr,omitempty"`
	TLS             TLSConfigTmp      `yaml:"tls,omitempty"`
	Currencies      []string          `yaml:"currencies,omitempty"`
	WindowSize      int               `yaml:"window_size,omitempty"`
	TopSize         int               `yaml:"top_size,omitempty"`
	TrendPeriod     int               `yaml:"trend_period,omitempty"`
	CollectInterval time.Duration     `yaml:"collect_interval,omitempty"`
	WALDir          string            `yaml:"wal_dir,omitempty"`
	Rates           map[string]string `yaml:"rates,omitempty"`
	LogLevel        string            `yaml:"log_level,omitempty"`
	Simulate        SimulateConfigTmp `yaml:"simulate"`
}

// Get parses os.Args. When --config is given the YAML file wins over the other flags.
func Get() (Config, Options, error) {
	return Parse(os.Args[1:])
}

// Parse reads the configuration from command line arguments.
func Parse(args []string) (Config, Options, error) {
	fs := flag.NewFlagSet("walletboard", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run the configuration wizard")
	addr := fs.String("addr", DefaultListenAddr, "http listen address")
	currencies := fs.String("currencies", "EUR,USD", "comma separated currencies to chart")
	topSize := fs.Int("topsize", DefaultTopSize, "number of wallets in the top wallets chart")
	interval := fs.Duration("interval", DefaultCollectInterval, "deposit totals collect interval")
	walDir := fs.String("waldir", DefaultWALDir, "deposit totals write-ahead log directory")
	logLevel := fs.String("loglevel", DefaultLogLevel, "log level: debug, info, warn, error")
	simulate := fs.Bool("simulate", true, "drive the ledger with simulated wallet traffic")
	if err := fs.Parse(args); err != nil {
		return Config{}, Options{}, err
	}

	opts := Options{Path: *path, Setup: *setup}
	if opts.Path != "" {
		cfg, err := Load(opts.Path)
		return cfg, opts, err
	}

	tmp := ConfigTmp{
		ListenAddr:      *addr,
		Currencies:      splitList(*currencies),
		TopSize:         *topSize,
		CollectInterval: *interval,
		WALDir:          *walDir,
		LogLevel:        *logLevel,
		Simulate:        SimulateConfigTmp{Enabled: *simulate},
	}
	cfg, err := tmp.Build()
	return cfg, opts, err
}

// Load reads a YAML config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return tmp.Build()
}

// Build applies defaults and converts string fields.
func (c ConfigTmp) Build() (Config, error) {
	cfg := Config{
		ListenAddr:      c.ListenAddr,
		TLS:             TLSConfig{Domains: c.TLS.Domains, CacheDir: c.TLS.CacheDir},
		WindowSize:      c.WindowSize,
		TopSize:         c.TopSize,
		TrendPeriod:     c.TrendPeriod,
		CollectInterval: c.CollectInterval,
		WALDir:          c.WALDir,
		LogLevel:        strings.ToLower(strings.TrimSpace(c.LogLevel)),
		Simulate: SimulateConfig{
			Enabled: c.Simulate.Enabled,
			Wallets: c.Simulate.Wallets,
		},
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.WindowSize > DefaultWindowSize {
		return Config{}, errors.Errorf("incorrect 'window_size' param in yaml config (at most %d points are charted): %d", DefaultWindowSize, cfg.WindowSize)
	}
	if cfg.TopSize <= 0 {
		cfg.TopSize = DefaultTopSize
	}
	if cfg.TrendPeriod <= 0 {
		cfg.TrendPeriod = DefaultTrendPeriod
	}
	if cfg.CollectInterval <= 0 {
		cfg.CollectInterval = DefaultCollectInterval
	}
	if cfg.WALDir == "" {
		cfg.WALDir = DefaultWALDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Simulate.Wallets <= 0 {
		cfg.Simulate.Wallets = DefaultSimWallets
	}

	cfg.Simulate.EventsPerSecond = DefaultSimRate
	if c.Simulate.EventsPerSecondStr != "" {
		eps, err := strconv.ParseFloat(c.Simulate.EventsPerSecondStr, 64)
		if err != nil || eps <= 0 {
			return Config{}, errors.Errorf("incorrect 'simulate.events_per_second' param in yaml config (must be a positive number): %q", c.Simulate.EventsPerSecondStr)
		}
		cfg.Simulate.EventsPerSecond = eps
	}

	seen := make(map[string]bool)
	for _, cur := range c.Currencies {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur == "" || seen[cur] {
			continue
		}
		seen[cur] = true
		cfg.Currencies = append(cfg.Currencies, cur)
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = []string{"EUR", "USD"}
	}

	rawRates := c.Rates
	if len(rawRates) == 0 {
		rawRates = DefaultRates
	}
	cfg.Rates = make(map[string]decimal.Decimal, len(rawRates))
	for cur, raw := range rawRates {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, errors.Wrapf(err, "incorrect rate for %s in yaml config", cur)
		}
		if !rate.IsPositive() {
			return Config{}, errors.Errorf("rate for %s must be positive, got %s", cur, raw)
		}
		cfg.Rates[strings.ToUpper(strings.TrimSpace(cur))] = rate
	}

	var missing []string
	for _, cur := range cfg.Currencies {
		if _, ok := cfg.Rates[cur]; !ok {
			missing = append(missing, cur)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, errors.Errorf("no conversion rate to EUR for %s", strings.Join(missing, ", "))
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, errors.Errorf("unknown log level %q", cfg.LogLevel)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
