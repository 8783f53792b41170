package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
tls:
  domains: ["board.example.com"]
  cache_dir: /tmp/certs
currencies: [eur, usd, gbp]
window_size: 15
top_size: 5
trend_period: 8
collect_interval: 2s
wal_dir: /tmp/wal
rates:
  EUR: "1"
  USD: "0.9"
  gbp: "1.17"
log_level: DEBUG
simulate:
  enabled: true
  wallets: 12
  events_per_second: "7.5"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, []string{"board.example.com"}, cfg.TLS.Domains)
	assert.Equal(t, "/tmp/certs", cfg.TLS.CacheDir)
	assert.Equal(t, []string{"EUR", "USD", "GBP"}, cfg.Currencies)
	assert.Equal(t, 15, cfg.WindowSize)
	assert.Equal(t, 5, cfg.TopSize)
	assert.Equal(t, 8, cfg.TrendPeriod)
	assert.Equal(t, 2*time.Second, cfg.CollectInterval)
	assert.Equal(t, "/tmp/wal", cfg.WALDir)
	assert.True(t, cfg.Rates["GBP"].Equal(decimal.RequireFromString("1.17")))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Simulate.Enabled)
	assert.Equal(t, 12, cfg.Simulate.Wallets)
	assert.Equal(t, 7.5, cfg.Simulate.EventsPerSecond)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "simulate:\n  enabled: false\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, []string{"EUR", "USD"}, cfg.Currencies)
	assert.Equal(t, DefaultWindowSize, cfg.WindowSize)
	assert.Equal(t, DefaultTopSize, cfg.TopSize)
	assert.Equal(t, DefaultCollectInterval, cfg.CollectInterval)
	assert.Equal(t, DefaultWALDir, cfg.WALDir)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Simulate.Enabled)
	assert.Equal(t, DefaultSimRate, cfg.Simulate.EventsPerSecond)
	assert.True(t, cfg.Rates["EUR"].Equal(decimal.NewFromInt(1)))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing rate", body: "currencies: [EUR, CHF]\nrates:\n  EUR: \"1\"\n"},
		{name: "bad rate", body: "rates:\n  EUR: one\n  USD: \"0.9\"\n"},
		{name: "negative rate", body: "rates:\n  EUR: \"-1\"\n  USD: \"0.9\"\n"},
		{name: "bad events per second", body: "simulate:\n  events_per_second: fast\n"},
		{name: "bad log level", body: "log_level: loud\n"},
		{name: "window above chart limit", body: "window_size: 30\n"},
		{name: "bad yaml", body: "currencies: [EUR\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParse_Flags(t *testing.T) {
	cfg, opts, err := Parse([]string{"--addr", ":7000", "--currencies", "usd, eur", "--topsize", "3", "--simulate=false"})
	require.NoError(t, err)

	assert.Empty(t, opts.Path)
	assert.False(t, opts.Setup)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.Currencies)
	assert.Equal(t, 3, cfg.TopSize)
	assert.False(t, cfg.Simulate.Enabled)
}

func TestParse_ConfigFileAndSetup(t *testing.T) {
	path := writeConfig(t, "top_size: 4\n")

	cfg, opts, err := Parse([]string{"--setup", "--config", path})
	require.NoError(t, err)

	assert.True(t, opts.Setup)
	assert.Equal(t, path, opts.Path)
	assert.Equal(t, 4, cfg.TopSize)
}
